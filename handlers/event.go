package handlers

import (
	"fmt"
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/services"
	"bandmate-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// POST /api/bands/:id/events
func CreateEvent(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	if !isMember(bandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	eventType := req.EventType
	if eventType == "" {
		eventType = "rehearsal"
	}

	event := models.Event{
		BandID:    bandID,
		Title:     req.Title,
		EventType: eventType,
		Location:  req.Location,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Notes:     req.Notes,
		CreatedBy: userID,
	}

	if err := database.DB.Create(&event).Error; err != nil {
		utils.InternalError(c, "Failed to create event")
		return
	}

	var band models.Band
	database.DB.First(&band, "id = ?", bandID)

	database.DB.Create(&models.Activity{
		BandID:      bandID,
		UserID:      userID,
		Type:        "event_created",
		ReferenceID: event.ID,
		Description: fmt.Sprintf("New %s: %s", event.EventType, event.Title),
	})

	go services.GetNotificationService().NotifyEventCreated(
		band.ID.String(), band.Name, event.ID.String(), event.Title,
		memberFCMTokens(bandID, userID))

	utils.SuccessResponse(c, http.StatusCreated, "Event created", event)
}

// GET /api/bands/:id/events
func GetBandEvents(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	if !isMember(bandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	var events []models.Event
	database.DB.Where("band_id = ?", bandID).Order("starts_at ASC").Find(&events)

	utils.SuccessResponse(c, http.StatusOK, "", events)
}

// GET /api/events/:id
func GetEvent(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid event ID")
		return
	}

	var event models.Event
	if err := database.DB.First(&event, "id = ?", eventID).Error; err != nil {
		utils.NotFound(c, "Event not found")
		return
	}

	if !isMember(event.BandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", event)
}

// PUT /api/events/:id
func UpdateEvent(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid event ID")
		return
	}

	var event models.Event
	if err := database.DB.First(&event, "id = ?", eventID).Error; err != nil {
		utils.NotFound(c, "Event not found")
		return
	}

	if !isMember(event.BandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	var req struct {
		Title     string `json:"title"`
		EventType string `json:"event_type"`
		Location  string `json:"location"`
		Notes     string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.EventType != "" {
		updates["event_type"] = req.EventType
	}
	if req.Location != "" {
		updates["location"] = req.Location
	}
	if req.Notes != "" {
		updates["notes"] = req.Notes
	}

	database.DB.Model(&event).Updates(updates)

	utils.SuccessResponse(c, http.StatusOK, "Event updated", event)
}

// DELETE /api/events/:id
func DeleteEvent(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid event ID")
		return
	}

	var event models.Event
	if err := database.DB.First(&event, "id = ?", eventID).Error; err != nil {
		utils.NotFound(c, "Event not found")
		return
	}

	if !isAdmin(event.BandID, userID) && event.CreatedBy != userID {
		utils.Forbidden(c, "Only admins or the event creator can delete an event")
		return
	}

	database.DB.Where("event_id = ?", eventID).Delete(&models.Attendance{})
	database.DB.Delete(&event)

	utils.SuccessResponse(c, http.StatusOK, "Event deleted", nil)
}

// PUT /api/events/:id/attendance — set the caller's own RSVP
func UpdateAttendance(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid event ID")
		return
	}

	var event models.Event
	if err := database.DB.First(&event, "id = ?", eventID).Error; err != nil {
		utils.NotFound(c, "Event not found")
		return
	}

	if !isMember(event.BandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	var req models.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	attendance := models.Attendance{
		EventID: eventID,
		UserID:  userID,
		Status:  req.Status,
	}

	// Repeated RSVPs overwrite, never duplicate.
	if err := database.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": req.Status}),
	}).Create(&attendance).Error; err != nil {
		utils.InternalError(c, "Failed to update attendance")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Attendance updated", attendance)
}

// GET /api/events/:id/attendance
func GetEventAttendance(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid event ID")
		return
	}

	var event models.Event
	if err := database.DB.First(&event, "id = ?", eventID).Error; err != nil {
		utils.NotFound(c, "Event not found")
		return
	}

	if !isMember(event.BandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	var attendance []models.Attendance
	database.DB.Where("event_id = ?", eventID).Preload("User").Find(&attendance)

	utils.SuccessResponse(c, http.StatusOK, "", attendance)
}
