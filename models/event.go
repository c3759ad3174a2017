package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attendance statuses.
const (
	AttendanceGoing    = "going"
	AttendanceMaybe    = "maybe"
	AttendanceDeclined = "declined"
)

type Event struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BandID    uuid.UUID `gorm:"type:uuid;index" json:"band_id"`
	Title     string    `gorm:"not null;size:200" json:"title"`
	EventType string    `gorm:"default:rehearsal;size:20" json:"event_type"` // rehearsal, gig, other
	Location  string    `gorm:"size:255" json:"location,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type Attendance struct {
	EventID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"event_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status    string    `gorm:"default:maybe;size:20" json:"status"` // going, maybe, declined
	UpdatedAt time.Time `json:"updated_at"`
}

// Request structs
type CreateEventRequest struct {
	Title     string    `json:"title" binding:"required"`
	EventType string    `json:"event_type"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"starts_at" binding:"required"`
	EndsAt    time.Time `json:"ends_at"`
	Notes     string    `json:"notes"`
}

type UpdateAttendanceRequest struct {
	Status string `json:"status" binding:"required,oneof=going maybe declined"`
}
