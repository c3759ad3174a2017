package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bandmate-backend/models"
	"bandmate-backend/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Guard failures, one per rejection reason so handlers can map them to
// status codes with errors.Is.
var (
	ErrMalformedToken     = errors.New("malformed invitation token")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidRole        = errors.New("role must be admin or member")
	ErrNotAuthenticated   = errors.New("authentication required")
	ErrNotBandAdmin       = errors.New("only band admins can manage invitations")
	ErrInviteNotFound     = errors.New("invitation not found")
	ErrInviteExpired      = errors.New("invitation has expired")
	ErrInviteNotPending   = errors.New("invitation is not pending")
	ErrEmailMismatch      = errors.New("invitation was sent to a different email address")
	ErrNotificationFailed = errors.New("invitation saved but the email could not be sent")
)

const previewCacheTTL = time.Minute

// InviteNotifier delivers the acceptance email.
type InviteNotifier interface {
	SendInviteEmail(email, inviterName, bandName, acceptURL string) error
}

// InviteService owns the invitation lifecycle: issue, preview, accept,
// revoke. All guards for acceptance live here in one canonical order;
// HTTP handlers stay thin.
type InviteService struct {
	db       *gorm.DB
	cache    *redis.Client // optional, nil when redis is unavailable
	notifier InviteNotifier
	appURL   string
	ttl      time.Duration
}

func NewInviteService(db *gorm.DB, cache *redis.Client, notifier InviteNotifier, appURL string, ttl time.Duration) *InviteService {
	return &InviteService{
		db:       db,
		cache:    cache,
		notifier: notifier,
		appURL:   appURL,
		ttl:      ttl,
	}
}

// AcceptURL builds the link embedded in the invitation email.
func (s *InviteService) AcceptURL(token string) string {
	return fmt.Sprintf("%s/invites/%s", s.appURL, token)
}

// Issue creates a pending invitation for (band, email) at the given
// role, or refreshes the existing pending one. Re-issuing before
// acceptance reuses the same token and updates the role, so there is at
// most one pending invitation per (band, email).
//
// The caller must be an admin of the band; there is no row-level
// security store underneath, so the role check happens here, before any
// write.
func (s *InviteService) Issue(bandID, inviterID uuid.UUID, email, role string) (*models.Invitation, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if role == "" {
		role = models.RoleMember
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	var caller models.BandMember
	if err := s.db.Where("band_id = ? AND user_id = ?", bandID, inviterID).First(&caller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotBandAdmin
		}
		return nil, fmt.Errorf("checking caller role: %w", err)
	}
	if caller.Role != models.RoleAdmin {
		return nil, ErrNotBandAdmin
	}

	now := time.Now()

	inv, err := s.refreshPending(bandID, inviterID, email, role, now)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		token, err := utils.GenerateInviteToken()
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}
		created := models.Invitation{
			BandID:    bandID,
			Email:     email,
			Role:      role,
			Token:     token,
			Status:    models.InviteStatusPending,
			InvitedBy: inviterID,
			ExpiresAt: now.Add(s.ttl),
		}
		if createErr := s.db.Create(&created).Error; createErr != nil {
			if !isDuplicateKey(createErr) {
				return nil, fmt.Errorf("creating invitation: %w", createErr)
			}
			// Lost a concurrent issue: the partial unique index on
			// pending (band_id, email) kept one row. Refresh the winner.
			inv, err = s.refreshPending(bandID, inviterID, email, role, now)
			if err != nil {
				return nil, fmt.Errorf("refreshing invitation after conflict: %w", err)
			}
		} else {
			inv = &created
		}
	default:
		return nil, err
	}

	s.invalidatePreview(inv.Token)

	// Inviter and band names are decoration for the email; missing rows
	// must not block issuance.
	var inviter models.User
	s.db.First(&inviter, "id = ?", inviterID)
	var band models.Band
	s.db.First(&band, "id = ?", bandID)

	if err := s.notifier.SendInviteEmail(email, inviter.Name, band.Name, s.AcceptURL(inv.Token)); err != nil {
		// The row exists and re-issuing reuses the token, so retrying is
		// safe. Surface the delivery failure as its own error.
		return inv, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	return inv, nil
}

// refreshPending finds the pending invitation for (band, email) and
// stamps it with the latest role, inviter and expiry. The token is
// reused so links already sent keep working.
func (s *InviteService) refreshPending(bandID, inviterID uuid.UUID, email, role string, now time.Time) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.db.Where("band_id = ? AND email = ? AND status = ?",
		bandID, email, models.InviteStatusPending).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("looking up invitation: %w", err)
	}

	updates := map[string]interface{}{
		"role":       role,
		"invited_by": inviterID,
		"expires_at": now.Add(s.ttl),
	}
	if err := s.db.Model(&inv).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("refreshing invitation: %w", err)
	}
	inv.Role = role
	inv.InvitedBy = inviterID
	inv.ExpiresAt = now.Add(s.ttl)
	return &inv, nil
}

// isDuplicateKey reports whether err is a unique constraint violation.
// Covers gorm's translated error plus the raw postgres and sqlite
// messages, since error translation is driver-dependent.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// Get returns the public preview of an invitation for the acceptance
// page. Expiry is applied lazily: a pending invite past its expires_at
// reads as expired.
func (s *InviteService) Get(token string) (*models.InvitePreview, error) {
	if !utils.ValidInviteToken(token) {
		return nil, ErrMalformedToken
	}

	inv := s.cachedInvitation(token)
	if inv == nil {
		var loaded models.Invitation
		if err := s.db.Preload("Band").Where("token = ?", token).First(&loaded).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInviteNotFound
			}
			return nil, fmt.Errorf("looking up invitation: %w", err)
		}
		inv = &loaded
		s.storeInvitation(inv)
	}

	// The cache holds the raw row and the effective status is computed
	// per read, so a cache hit cannot report pending past expires_at.
	return &models.InvitePreview{
		Token:     inv.Token,
		BandID:    inv.BandID,
		BandName:  inv.Band.Name,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    inv.EffectiveStatus(time.Now()),
		CreatedAt: inv.CreatedAt,
	}, nil
}

// Accept converts a pending invitation into a band membership. The
// guards run in a fixed order and any failure aborts with no writes:
//
//  1. token shape
//  2. caller identity present
//  3. invitation exists
//  4. not expired (lazy check against expires_at)
//  5. status is pending (error names the actual status)
//  6. invite email matches the caller's verified email, when both are set
//
// The membership write is a single conflict-resolving statement keyed
// on (band_id, user_id), so concurrent accepts of the same token
// converge on one row. Marking the invitation accepted comes after the
// grant: if we crash between the two, a retry of the same token still
// succeeds because the upsert is idempotent.
func (s *InviteService) Accept(token string, userID uuid.UUID, userEmail string) (*models.BandMember, error) {
	if !utils.ValidInviteToken(token) {
		return nil, ErrMalformedToken
	}
	if userID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	var inv models.Invitation
	if err := s.db.Where("token = ?", token).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("looking up invitation: %w", err)
	}

	if inv.Status == models.InviteStatusPending && inv.Expired(time.Now()) {
		return nil, ErrInviteExpired
	}
	if inv.Status != models.InviteStatusPending {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotPending, inv.Status)
	}
	if inv.Email != "" && userEmail != "" &&
		utils.NormalizeEmail(inv.Email) != utils.NormalizeEmail(userEmail) {
		return nil, ErrEmailMismatch
	}

	member := models.BandMember{
		BandID: inv.BandID,
		UserID: userID,
		Role:   inv.Role,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "band_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"role": inv.Role}),
	}).Create(&member).Error; err != nil {
		return nil, fmt.Errorf("granting membership: %w", err)
	}

	// Guarded by status = pending so a lost race leaves the row as the
	// winner wrote it.
	if err := s.db.Model(&models.Invitation{}).
		Where("id = ? AND status = ?", inv.ID, models.InviteStatusPending).
		Update("status", models.InviteStatusAccepted).Error; err != nil {
		return nil, fmt.Errorf("marking invitation accepted: %w", err)
	}

	s.invalidatePreview(token)
	return &member, nil
}

// Revoke cancels a pending invitation. Admin-only, like Issue.
func (s *InviteService) Revoke(bandID, callerID, inviteID uuid.UUID) error {
	var caller models.BandMember
	if err := s.db.Where("band_id = ? AND user_id = ?", bandID, callerID).First(&caller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotBandAdmin
		}
		return fmt.Errorf("checking caller role: %w", err)
	}
	if caller.Role != models.RoleAdmin {
		return ErrNotBandAdmin
	}

	var inv models.Invitation
	if err := s.db.Where("id = ? AND band_id = ?", inviteID, bandID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("looking up invitation: %w", err)
	}
	if inv.Status != models.InviteStatusPending {
		return fmt.Errorf("%w: %s", ErrInviteNotPending, inv.Status)
	}

	if err := s.db.Model(&inv).Update("status", models.InviteStatusRevoked).Error; err != nil {
		return fmt.Errorf("revoking invitation: %w", err)
	}

	s.invalidatePreview(inv.Token)
	return nil
}

// ListByBand returns a band's invitations for its members.
func (s *InviteService) ListByBand(bandID, callerID uuid.UUID) ([]models.Invitation, error) {
	var caller models.BandMember
	if err := s.db.Where("band_id = ? AND user_id = ?", bandID, callerID).First(&caller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotBandAdmin
		}
		return nil, fmt.Errorf("checking caller role: %w", err)
	}

	var invites []models.Invitation
	if err := s.db.Where("band_id = ?", bandID).
		Order("created_at DESC").Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}

	now := time.Now()
	for i := range invites {
		invites[i].Status = invites[i].EffectiveStatus(now)
	}
	return invites, nil
}

// AcceptPendingForUser runs the acceptance pipeline for every pending
// invitation addressed to a newly registered user's email. Failures are
// logged and skipped; registration must not fail because an invite was
// stale.
func (s *InviteService) AcceptPendingForUser(user models.User) {
	var invites []models.Invitation
	if err := s.db.Where("email = ? AND status = ?",
		utils.NormalizeEmail(user.Email), models.InviteStatusPending).Find(&invites).Error; err != nil {
		log.Printf("❌ Failed to load pending invitations for %s: %v", user.Email, err)
		return
	}

	for _, inv := range invites {
		if _, err := s.Accept(inv.Token, user.ID, user.Email); err != nil {
			log.Printf("⚠️  Skipping invitation %s for %s: %v", inv.ID, user.Email, err)
		}
	}
}

// ============================================================
// PREVIEW CACHE (redis, optional)
// ============================================================

func previewCacheKey(token string) string {
	return "invite:preview:" + token
}

func (s *InviteService) cachedInvitation(token string) *models.Invitation {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(context.Background(), previewCacheKey(token)).Bytes()
	if err != nil {
		return nil
	}
	var inv models.Invitation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil
	}
	return &inv
}

func (s *InviteService) storeInvitation(inv *models.Invitation) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return
	}
	s.cache.Set(context.Background(), previewCacheKey(inv.Token), raw, previewCacheTTL)
}

func (s *InviteService) invalidatePreview(token string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(context.Background(), previewCacheKey(token))
}
