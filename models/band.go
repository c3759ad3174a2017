package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member roles within a band.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

type Band struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string       `gorm:"not null;size:100" json:"name"`
	Genre     string       `gorm:"size:50" json:"genre,omitempty"`
	ImageURL  string       `json:"image_url,omitempty"`
	CreatedBy uuid.UUID    `gorm:"type:uuid" json:"created_by"`
	Creator   User         `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Members   []BandMember `gorm:"foreignKey:BandID" json:"members,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (b *Band) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type BandMember struct {
	BandID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"band_id"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role     string    `gorm:"default:member;size:20" json:"role"` // admin, member
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Request structs
type CreateBandRequest struct {
	Name  string `json:"name" binding:"required"`
	Genre string `json:"genre"`
}

// Response structs
type BandResponse struct {
	ID        uuid.UUID            `json:"id"`
	Name      string               `json:"name"`
	Genre     string               `json:"genre,omitempty"`
	ImageURL  string               `json:"image_url,omitempty"`
	CreatedBy uuid.UUID            `json:"created_by"`
	Members   []BandMemberResponse `json:"members"`
	CreatedAt time.Time            `json:"created_at"`
}

type BandMemberResponse struct {
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Instrument string    `json:"instrument,omitempty"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
}
