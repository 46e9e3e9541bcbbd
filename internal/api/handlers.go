package api

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"net/url"
	"time"

	"github.com/gmsas95/medtracker/internal/calendar"
	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/gmsas95/medtracker/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// defaultAdherenceDays is the range used when no from date is given.
const defaultAdherenceDays = 7

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"uptime":    s.metrics.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	want := s.config.Security.AdminPassword
	if want != "" && subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid password"})
	}

	ttl := time.Duration(s.config.Security.TokenTTL) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": s.service.UserID(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString, "expires_at": now.Add(ttl).Unix()})
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.service.List(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(meds)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req tracker.NewMedication
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.service.Create(c.UserContext(), req)
	if err != nil {
		if med != nil {
			// Stored, but some reminders are missing.
			return s.writeError(c, err, fiber.Map{"medication": med})
		}
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var patch schedule.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if patch.IsEmpty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}

	med, err := s.service.Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		if med != nil {
			return s.writeError(c, err, fiber.Map{"medication": med})
		}
		return s.writeError(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	var req takenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	raw := req.Key
	if raw == "" && req.Date != "" && req.Time != "" {
		raw = req.Date + "T" + req.Time
	}
	key, err := parseKey(raw)
	if err != nil {
		return s.writeError(c, err)
	}

	med, err := s.service.MarkTaken(c.UserContext(), c.Params("id"), key)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUnmarkTaken(c *fiber.Ctx) error {
	raw, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		raw = c.Params("key")
	}
	key, err := parseKey(raw)
	if err != nil {
		return s.writeError(c, err)
	}

	med, err := s.service.Unmark(c.UserContext(), c.Params("id"), key)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleSyncReminders(c *fiber.Ctx) error {
	report, err := s.service.SyncReminders(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err, fiber.Map{"report": newReportView(report)})
	}
	return c.JSON(newReportView(report))
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	triggers, err := s.service.Reminders(c.UserContext(), c.Query("medication_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	if triggers == nil {
		triggers = []reminders.Trigger{}
	}
	return c.JSON(triggers)
}

func (s *Server) handleAgenda(c *fiber.Ctx) error {
	date, err := s.queryDate(c, "date", schedule.DateOf(s.service.Now()))
	if err != nil {
		return s.writeError(c, err)
	}

	items, err := s.service.Agenda(c.UserContext(), date)
	if err != nil {
		return s.writeError(c, err)
	}
	doses := make([]doseView, 0, len(items))
	for _, it := range items {
		doses = append(doses, newDoseView(it.Dose, it.Status))
	}
	return c.JSON(fiber.Map{"date": date.String(), "doses": doses})
}

func (s *Server) handleUpcoming(c *fiber.Ctx) error {
	window := s.service.Window()
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return s.writeError(c, apperrors.Validation(apperrors.CodeInvalidInput, "invalid window %q", raw))
		}
		window = d
	}

	upcoming, err := s.service.Upcoming(c.UserContext(), window)
	if err != nil {
		return s.writeError(c, err)
	}
	doses := make([]doseView, 0, len(upcoming))
	for _, d := range upcoming {
		doses = append(doses, newDoseView(d, schedule.StatusDueSoon))
	}
	return c.JSON(fiber.Map{"window": window.String(), "doses": doses})
}

func (s *Server) handleWeekly(c *fiber.Ctx) error {
	week, err := s.service.Weekly(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(newWeekView(week))
}

func (s *Server) handleCalendar(c *fiber.Ctx) error {
	now := s.service.Now()
	from, err := s.queryDate(c, "from", schedule.DateOf(now))
	if err != nil {
		return s.writeError(c, err)
	}

	meds, err := s.service.List(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, calendar.Export(meds, from, now.Location(), now)); err != nil {
		if errors.Is(err, calendar.ErrNoEvents) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no scheduled doses"})
		}
		return s.writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="medtracker.ics"`)
	return c.Send(buf.Bytes())
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	to, err := s.queryDate(c, "to", schedule.DateOf(s.service.Now()))
	if err != nil {
		return s.writeError(c, err)
	}
	from, err := s.queryDate(c, "from", to.AddDays(-(defaultAdherenceDays - 1)))
	if err != nil {
		return s.writeError(c, err)
	}

	summary, err := s.service.Adherence(c.UserContext(), from, to)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(summary)
}

func (s *Server) queryDate(c *fiber.Ctx, name string, fallback schedule.Date) (schedule.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		return schedule.Date{}, apperrors.Validation(apperrors.CodeInvalidInput, "invalid %s %q, want YYYY-MM-DD", name, raw)
	}
	return d, nil
}

func parseKey(raw string) (schedule.OccurrenceKey, error) {
	key, err := schedule.ParseOccurrenceKey(raw)
	if err != nil {
		return schedule.OccurrenceKey{}, apperrors.Validation(apperrors.CodeInvalidInput, "invalid dose key %q, want YYYY-MM-DDTHH:MM", raw)
	}
	return key, nil
}

func newReportView(r reminders.Report) reportView {
	v := reportView{Scheduled: r.Scheduled, Canceled: r.Canceled, Failed: r.Failed()}
	if v.Scheduled == nil {
		v.Scheduled = []string{}
	}
	if v.Canceled == nil {
		v.Canceled = []string{}
	}
	return v
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return fiber.StatusBadRequest
	case apperrors.IsNotFound(err):
		return fiber.StatusNotFound
	case apperrors.IsExternalIO(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) writeError(c *fiber.Ctx, err error, extra ...fiber.Map) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	body := fiber.Map{"error": err.Error(), "code": apperrors.GetCode(err)}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body["error"] = appErr.Message
	}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.Status(status).JSON(body)
}
