package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invitation statuses. Accepted is terminal: once an invitation is
// consumed it never goes back to pending.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
	InviteStatusExpired  = "expired"
)

// Invitation is a single-use capability to join one band at one role.
// The token is the credential: whoever presents it (with a matching
// verified email, if the invite is email-bound) gets the membership.
type Invitation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BandID    uuid.UUID `gorm:"type:uuid;index:idx_invitations_band_email" json:"band_id"`
	Band      Band      `gorm:"foreignKey:BandID" json:"band,omitempty"`
	Email     string    `gorm:"size:255;index:idx_invitations_band_email" json:"email,omitempty"`
	Role      string    `gorm:"default:member;size:20" json:"role"`
	Token     string    `gorm:"uniqueIndex;size:64;not null" json:"token"`
	Status    string    `gorm:"default:pending;size:20" json:"status"`
	InvitedBy uuid.UUID `gorm:"type:uuid" json:"invited_by"`
	Inviter   User      `gorm:"foreignKey:InvitedBy" json:"inviter,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the invitation is past its expiry, regardless
// of the stored status. Expiry is checked lazily at read time.
func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// EffectiveStatus is the status after the lazy expiry check.
func (i *Invitation) EffectiveStatus(now time.Time) string {
	if i.Status == InviteStatusPending && i.Expired(now) {
		return InviteStatusExpired
	}
	return i.Status
}

type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// InviteResponse is returned to the issuing admin.
type InviteResponse struct {
	Token     string    `json:"token"`
	AcceptURL string    `json:"accept_url"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvitePreview is the public view served to the acceptance page,
// before the invitee has signed in.
type InvitePreview struct {
	Token     string    `json:"token"`
	BandID    uuid.UUID `json:"band_id"`
	BandName  string    `json:"band_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AcceptResponse is returned on successful acceptance.
type AcceptResponse struct {
	BandID uuid.UUID `json:"band_id"`
	Role   string    `json:"role"`
}
