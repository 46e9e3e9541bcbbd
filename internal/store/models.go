package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MedicationRecord is the persisted row of one medication. Days, times and
// the taken map are JSON columns.
type MedicationRecord struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"index:idx_user_created;not null" json:"user_id"`
	Name      string         `gorm:"not null" json:"name"`
	Dosage    string         `json:"dosage"`
	Notes     string         `json:"notes"`
	Days      datatypes.JSON `json:"days"`  // [1,3,5]
	Times     datatypes.JSON `json:"times"` // ["08:00","20:00"]
	Taken     datatypes.JSON `json:"taken"` // {"2024-01-01T08:00":true}
	CreatedAt time.Time      `gorm:"index:idx_user_created" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (MedicationRecord) TableName() string {
	return "medications"
}

func (r *MedicationRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func toRecord(m *schedule.Medication) (*MedicationRecord, error) {
	days, err := json.Marshal(nonNil(m.Days))
	if err != nil {
		return nil, fmt.Errorf("encode days: %w", err)
	}
	times, err := json.Marshal(nonNil(m.Times))
	if err != nil {
		return nil, fmt.Errorf("encode times: %w", err)
	}
	taken := m.Taken
	if taken == nil {
		taken = schedule.TakenMap{}
	}
	takenJSON, err := json.Marshal(taken)
	if err != nil {
		return nil, fmt.Errorf("encode taken: %w", err)
	}
	return &MedicationRecord{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		Dosage:    m.Dosage,
		Notes:     m.Notes,
		Days:      datatypes.JSON(days),
		Times:     datatypes.JSON(times),
		Taken:     datatypes.JSON(takenJSON),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *MedicationRecord) toMedication() (schedule.Medication, error) {
	m := schedule.Medication{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Dosage:    r.Dosage,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := decodeJSON(r.Days, &m.Days); err != nil {
		return m, fmt.Errorf("decode days of %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Times, &m.Times); err != nil {
		return m, fmt.Errorf("decode times of %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Taken, &m.Taken); err != nil {
		return m, fmt.Errorf("decode taken of %s: %w", r.ID, err)
	}
	if m.Taken == nil {
		m.Taken = schedule.TakenMap{}
	}
	return m, nil
}

func decodeJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
