package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (s *stubNotifier) SendInviteEmail(email, inviterName, bandName, acceptURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, email)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Serialize access so concurrent accepts exercise the conflict
	// resolution, not sqlite's file locking.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fixture struct {
	svc      *InviteService
	db       *gorm.DB
	cache    *redis.Client
	notifier *stubNotifier
	band     models.Band
	admin    models.User
	alice    models.User
	bob      models.User
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, nil)
}

// newCachedFixture backs the preview cache with an in-process redis.
func newCachedFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	return newFixtureWithCache(t, cache)
}

func newFixtureWithCache(t *testing.T, cache *redis.Client) *fixture {
	t.Helper()

	db := newTestDB(t)
	notifier := &stubNotifier{}
	svc := NewInviteService(db, cache, notifier, "https://bandmate.test", 14*24*time.Hour)

	f := &fixture{svc: svc, db: db, cache: cache, notifier: notifier}

	f.admin = models.User{Email: "admin@example.com", Name: "Admin", PasswordHash: "x"}
	f.alice = models.User{Email: "alice@example.com", Name: "Alice", PasswordHash: "x"}
	f.bob = models.User{Email: "bob@example.com", Name: "Bob", PasswordHash: "x"}
	for _, u := range []*models.User{&f.admin, &f.alice, &f.bob} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	f.band = models.Band{Name: "The Testers", CreatedBy: f.admin.ID}
	if err := db.Create(&f.band).Error; err != nil {
		t.Fatalf("failed to create band: %v", err)
	}
	if err := db.Create(&models.BandMember{BandID: f.band.ID, UserID: f.admin.ID, Role: models.RoleAdmin}).Error; err != nil {
		t.Fatalf("failed to create admin membership: %v", err)
	}

	return f
}

func (f *fixture) membershipCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	f.db.Model(&models.BandMember{}).
		Where("band_id = ? AND user_id = ?", f.band.ID, userID).Count(&count)
	return count
}

func TestIssue_CreatesPendingInvite(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Issue(f.band.ID, f.admin.ID, "Alice@Example.com ", models.RoleMember)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if inv.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", inv.Email)
	}
	if inv.Status != models.InviteStatusPending {
		t.Errorf("expected pending, got %q", inv.Status)
	}
	if !utils.ValidInviteToken(inv.Token) {
		t.Errorf("token %q has unexpected shape", inv.Token)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != "alice@example.com" {
		t.Errorf("expected one email to alice, got %v", f.notifier.sent)
	}
}

func TestIssue_ReissueReusesTokenAndUpdatesRole(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	second, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleAdmin)
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}

	if second.Token != first.Token {
		t.Errorf("expected token reuse, got %q then %q", first.Token, second.Token)
	}
	if second.Role != models.RoleAdmin {
		t.Errorf("expected role updated to admin, got %q", second.Role)
	}

	var count int64
	f.db.Model(&models.Invitation{}).
		Where("band_id = ? AND email = ?", f.band.ID, "alice@example.com").Count(&count)
	if count != 1 {
		t.Errorf("expected one invitation row, got %d", count)
	}
}

func TestIssue_PendingUniqueIndexEnforced(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// A second pending row for the same (band, email) must be rejected
	// by the database itself, not just the service's read-then-write.
	token, err := utils.GenerateInviteToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	dup := models.Invitation{
		BandID:    f.band.ID,
		Email:     "alice@example.com",
		Role:      models.RoleMember,
		Token:     token,
		Status:    models.InviteStatusPending,
		InvitedBy: f.admin.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := f.db.Create(&dup).Error; err == nil {
		t.Fatal("expected unique violation for second pending invitation")
	} else if !isDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	// The index is partial: settled rows for the same pair are fine.
	token, err = utils.GenerateInviteToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	revoked := models.Invitation{
		BandID:    f.band.ID,
		Email:     "alice@example.com",
		Role:      models.RoleMember,
		Token:     token,
		Status:    models.InviteStatusRevoked,
		InvitedBy: f.admin.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := f.db.Create(&revoked).Error; err != nil {
		t.Fatalf("expected revoked row alongside pending one, got %v", err)
	}
}

func TestIssue_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	const n = 8
	invs := make([]*models.Invitation, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			invs[i], errs[i] = f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: unexpected error %v", i, err)
		}
	}

	var count int64
	f.db.Model(&models.Invitation{}).
		Where("band_id = ? AND email = ? AND status = ?",
			f.band.ID, "alice@example.com", models.InviteStatusPending).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one pending invitation, got %d", count)
	}

	for i := 1; i < n; i++ {
		if invs[i] != nil && invs[0] != nil && invs[i].Token != invs[0].Token {
			t.Errorf("expected all issuers to converge on one token, got %q and %q", invs[0].Token, invs[i].Token)
		}
	}
}

func TestIssue_RequiresAdmin(t *testing.T) {
	f := newFixture(t)

	// Bob is a plain member
	f.db.Create(&models.BandMember{BandID: f.band.ID, UserID: f.bob.ID, Role: models.RoleMember})

	if _, err := f.svc.Issue(f.band.ID, f.bob.ID, "alice@example.com", models.RoleMember); !errors.Is(err, ErrNotBandAdmin) {
		t.Errorf("expected ErrNotBandAdmin for member, got %v", err)
	}
	if _, err := f.svc.Issue(f.band.ID, f.alice.ID, "alice@example.com", models.RoleMember); !errors.Is(err, ErrNotBandAdmin) {
		t.Errorf("expected ErrNotBandAdmin for non-member, got %v", err)
	}

	var count int64
	f.db.Model(&models.Invitation{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no invitation rows, got %d", count)
	}
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Issue(f.band.ID, f.admin.ID, "   ", models.RoleMember); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("expected ErrEmailRequired, got %v", err)
	}
	if _, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", "owner"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestIssue_NotificationFailureKeepsInvitation(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	inv, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if inv == nil {
		t.Fatal("expected invitation returned alongside the delivery error")
	}

	// The row persisted; retrying reuses the same token.
	f.notifier.fail = false
	again, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if err != nil {
		t.Fatalf("re-issue failed: %v", err)
	}
	if again.Token != inv.Token {
		t.Errorf("expected retry to reuse token %q, got %q", inv.Token, again.Token)
	}
}

func TestAccept_HappyPath(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	member, err := f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if member.BandID != f.band.ID || member.Role != models.RoleMember {
		t.Errorf("unexpected membership %+v", member)
	}
	if got := f.membershipCount(t, f.alice.ID); got != 1 {
		t.Errorf("expected 1 membership row, got %d", got)
	}

	var stored models.Invitation
	f.db.First(&stored, "id = ?", inv.ID)
	if stored.Status != models.InviteStatusAccepted {
		t.Errorf("expected invitation accepted, got %q", stored.Status)
	}
}

func TestAccept_SecondAttemptFails(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if _, err := f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com"); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	_, err := f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com")
	if !errors.Is(err, ErrInviteNotPending) {
		t.Fatalf("expected ErrInviteNotPending, got %v", err)
	}
	if !strings.Contains(err.Error(), models.InviteStatusAccepted) {
		t.Errorf("error should name the actual status, got %q", err.Error())
	}
	if got := f.membershipCount(t, f.alice.ID); got != 1 {
		t.Errorf("expected membership unchanged at 1 row, got %d", got)
	}
}

func TestAccept_MalformedToken(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "nope", "UPPERCASE", strings.Repeat("g", 64)} {
		if _, err := f.svc.Accept(token, f.alice.ID, "alice@example.com"); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("token %q: expected ErrMalformedToken, got %v", token, err)
		}
	}
}

func TestAccept_NotFound(t *testing.T) {
	f := newFixture(t)

	token, _ := utils.GenerateInviteToken()
	if _, err := f.svc.Accept(token, f.alice.ID, "alice@example.com"); !errors.Is(err, ErrInviteNotFound) {
		t.Errorf("expected ErrInviteNotFound, got %v", err)
	}
	if got := f.membershipCount(t, f.alice.ID); got != 0 {
		t.Errorf("expected no writes, got %d membership rows", got)
	}
}

func TestAccept_NoIdentity(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if _, err := f.svc.Accept(inv.Token, uuid.Nil, ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestAccept_EmailMismatch(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)

	if _, err := f.svc.Accept(inv.Token, f.bob.ID, "bob@example.com"); !errors.Is(err, ErrEmailMismatch) {
		t.Fatalf("expected ErrEmailMismatch, got %v", err)
	}

	// No side effects: the invitation stays pending, Bob gets nothing.
	var stored models.Invitation
	f.db.First(&stored, "id = ?", inv.ID)
	if stored.Status != models.InviteStatusPending {
		t.Errorf("expected invitation still pending, got %q", stored.Status)
	}
	if got := f.membershipCount(t, f.bob.ID); got != 0 {
		t.Errorf("expected no membership for bob, got %d", got)
	}

	// Case differences are not a mismatch.
	if _, err := f.svc.Accept(inv.Token, f.alice.ID, "ALICE@Example.COM"); err != nil {
		t.Errorf("case-insensitive match should succeed, got %v", err)
	}
}

func TestAccept_ExpiredInvitation(t *testing.T) {
	f := newFixture(t)

	// Stored status still says pending; expiry is decided at read time.
	token, _ := utils.GenerateInviteToken()
	inv := models.Invitation{
		BandID:    f.band.ID,
		Email:     "alice@example.com",
		Role:      models.RoleMember,
		Token:     token,
		Status:    models.InviteStatusPending,
		InvitedBy: f.admin.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := f.db.Create(&inv).Error; err != nil {
		t.Fatalf("failed to seed invitation: %v", err)
	}

	_, err := f.svc.Accept(token, f.alice.ID, "alice@example.com")
	if !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
	if got := f.membershipCount(t, f.alice.ID); got != 0 {
		t.Errorf("expected no writes, got %d membership rows", got)
	}
}

func TestAccept_RevokedInvitation(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if err := f.svc.Revoke(f.band.ID, f.admin.ID, inv.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	_, err := f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com")
	if !errors.Is(err, ErrInviteNotPending) {
		t.Fatalf("expected ErrInviteNotPending, got %v", err)
	}
	if !strings.Contains(err.Error(), models.InviteStatusRevoked) {
		t.Errorf("error should name revoked, got %q", err.Error())
	}
}

func TestAccept_Concurrent(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com")
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInviteNotPending):
		default:
			t.Errorf("call %d: unexpected error %v", i, err)
		}
	}
	if successes < 1 {
		t.Error("expected at least one successful accept")
	}
	if got := f.membershipCount(t, f.alice.ID); got != 1 {
		t.Errorf("expected exactly one membership row, got %d", got)
	}
}

func TestGet_PreviewAndLazyExpiry(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)

	preview, err := f.svc.Get(inv.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if preview.Status != models.InviteStatusPending || preview.BandName != "The Testers" {
		t.Errorf("unexpected preview %+v", preview)
	}

	// Push expiry into the past; the stored status is untouched but the
	// preview must read expired.
	f.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).
		Update("expires_at", time.Now().Add(-time.Minute))

	preview, err = f.svc.Get(inv.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if preview.Status != models.InviteStatusExpired {
		t.Errorf("expected expired preview, got %q", preview.Status)
	}
}

func TestGet_CachedPreviewTracksExpiry(t *testing.T) {
	f := newCachedFixture(t)

	// Short TTL so the invitation expires while its cache entry is
	// still live.
	short := NewInviteService(f.db, f.cache, f.notifier, "https://bandmate.test", 30*time.Millisecond)

	inv, err := short.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Warm the cache while the invitation is still pending.
	preview, err := short.Get(inv.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if preview.Status != models.InviteStatusPending {
		t.Fatalf("expected pending preview, got %q", preview.Status)
	}

	time.Sleep(60 * time.Millisecond)

	// The cached entry is still live, but the status must be computed
	// against expires_at on every read.
	preview, err = short.Get(inv.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if preview.Status != models.InviteStatusExpired {
		t.Errorf("expected expired preview from cache, got %q", preview.Status)
	}
}

func TestAccept_InvalidatesCachedPreview(t *testing.T) {
	f := newCachedFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)

	if preview, err := f.svc.Get(inv.Token); err != nil || preview.Status != models.InviteStatusPending {
		t.Fatalf("expected pending preview, got %+v, %v", preview, err)
	}

	if _, err := f.svc.Accept(inv.Token, f.alice.ID, "alice@example.com"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	preview, err := f.svc.Get(inv.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if preview.Status != models.InviteStatusAccepted {
		t.Errorf("expected accepted preview after accept, got %q", preview.Status)
	}
}

func TestRevoke_RequiresAdminAndPending(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "alice@example.com", models.RoleMember)

	if err := f.svc.Revoke(f.band.ID, f.bob.ID, inv.ID); !errors.Is(err, ErrNotBandAdmin) {
		t.Errorf("expected ErrNotBandAdmin, got %v", err)
	}

	if err := f.svc.Revoke(f.band.ID, f.admin.ID, inv.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := f.svc.Revoke(f.band.ID, f.admin.ID, inv.ID); !errors.Is(err, ErrInviteNotPending) {
		t.Errorf("expected ErrInviteNotPending on double revoke, got %v", err)
	}
}

func TestAcceptPendingForUser(t *testing.T) {
	f := newFixture(t)

	inv, _ := f.svc.Issue(f.band.ID, f.admin.ID, "carol@example.com", models.RoleMember)

	carol := models.User{Email: "carol@example.com", Name: "Carol", PasswordHash: "x"}
	if err := f.db.Create(&carol).Error; err != nil {
		t.Fatalf("failed to create carol: %v", err)
	}

	f.svc.AcceptPendingForUser(carol)

	if got := f.membershipCount(t, carol.ID); got != 1 {
		t.Errorf("expected carol auto-joined, got %d rows", got)
	}
	var stored models.Invitation
	f.db.First(&stored, "id = ?", inv.ID)
	if stored.Status != models.InviteStatusAccepted {
		t.Errorf("expected invitation accepted, got %q", stored.Status)
	}
}
