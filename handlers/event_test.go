package handlers

import (
	"net/http"
	"testing"
	"time"

	"bandmate-backend/database"
	"bandmate-backend/models"
)

func TestAttendance_UpsertNoDuplicates(t *testing.T) {
	r := setupTestRouter(t)

	adminToken := registerUser(t, r, "Admin", "admin@example.com")
	band := createBand(t, r, adminToken, "B1")

	w := doJSON(t, r, http.MethodPost, "/api/bands/"+band.ID.String()+"/events", adminToken,
		models.CreateEventRequest{
			Title:    "Friday rehearsal",
			StartsAt: time.Now().Add(48 * time.Hour),
		})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var event models.Event
	decodeData(t, w, &event)

	// RSVP twice with different answers; the second overwrites.
	for _, status := range []string{models.AttendanceGoing, models.AttendanceDeclined} {
		w = doJSON(t, r, http.MethodPut, "/api/events/"+event.ID.String()+"/attendance", adminToken,
			models.UpdateAttendanceRequest{Status: status})
		if w.Code != http.StatusOK {
			t.Fatalf("attendance %s: expected 200, got %d: %s", status, w.Code, w.Body.String())
		}
	}

	var rows []models.Attendance
	database.DB.Where("event_id = ?", event.ID).Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("expected one attendance row, got %d", len(rows))
	}
	if rows[0].Status != models.AttendanceDeclined {
		t.Errorf("expected latest status declined, got %q", rows[0].Status)
	}
}

func TestCreateEvent_RequiresMembership(t *testing.T) {
	r := setupTestRouter(t)

	adminToken := registerUser(t, r, "Admin", "admin@example.com")
	strangerToken := registerUser(t, r, "Stranger", "stranger@example.com")
	band := createBand(t, r, adminToken, "B1")

	w := doJSON(t, r, http.MethodPost, "/api/bands/"+band.ID.String()+"/events", strangerToken,
		models.CreateEventRequest{
			Title:    "Crash the party",
			StartsAt: time.Now().Add(time.Hour),
		})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
