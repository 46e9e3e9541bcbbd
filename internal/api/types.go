package api

import (
	"time"

	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/gmsas95/medtracker/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Server struct {
	app     *fiber.App
	config  *config.Config
	service *tracker.Service
	logger  *zap.Logger
	metrics *metrics.Metrics
	version string
}

func New(cfg *config.Config, service *tracker.Service, logger *zap.Logger, m *metrics.Metrics, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		service: service,
		logger:  logger,
		metrics: m,
		version: version,
	}

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

type loginRequest struct {
	Password string `json:"password"`
}

type takenRequest struct {
	Key  string `json:"key"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type doseView struct {
	MedicationID string          `json:"medication_id"`
	Name         string          `json:"name"`
	Dosage       string          `json:"dosage,omitempty"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Key          string          `json:"key"`
	Status       schedule.Status `json:"status,omitempty"`
}

type weekdayView struct {
	Weekday int        `json:"weekday"`
	Name    string     `json:"name"`
	Slots   []slotView `json:"slots"`
}

type slotView struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Time         string `json:"time"`
}

type reportView struct {
	Scheduled []string `json:"scheduled"`
	Canceled  []string `json:"canceled"`
	Failed    []string `json:"failed"`
}

func newDoseView(d schedule.DoseInstance, status schedule.Status) doseView {
	return doseView{
		MedicationID: d.Medication.ID,
		Name:         d.Medication.Name,
		Dosage:       d.Medication.Dosage,
		Date:         d.Date.String(),
		Time:         d.Time.String(),
		Key:          d.Key().String(),
		Status:       status,
	}
}

func newWeekView(week map[time.Weekday][]schedule.Slot) []weekdayView {
	out := make([]weekdayView, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		slots := make([]slotView, 0, len(week[wd]))
		for _, sl := range week[wd] {
			slots = append(slots, slotView{
				MedicationID: sl.Medication.ID,
				Name:         sl.Medication.Name,
				Dosage:       sl.Medication.Dosage,
				Time:         sl.Time.String(),
			})
		}
		out = append(out, weekdayView{Weekday: int(wd), Name: wd.String(), Slots: slots})
	}
	return out
}
