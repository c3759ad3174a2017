package handlers

import (
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/services"
	"bandmate-backend/utils"
	"bandmate-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/bands/:id/messages
func GetBandMessages(c *gin.Context) {
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

	var pagination utils.PaginationQuery
	c.ShouldBindQuery(&pagination)

	var messages []models.Message
	database.DB.Where("band_id = ?", bandID).
		Preload("User").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&messages)

	utils.SuccessResponse(c, http.StatusOK, "", messages)
}

// POST /api/bands/:id/messages
func CreateMessage(c *gin.Context) {
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

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	message := models.Message{
		BandID:  bandID,
		UserID:  userID,
		Content: req.Content,
	}

	if err := database.DB.Create(&message).Error; err != nil {
		utils.InternalError(c, "Failed to send message")
		return
	}

	database.DB.Preload("User").First(&message, "id = ?", message.ID)

	// Fan out to connected clients; push to everyone else's devices.
	websocket.BroadcastToBand(bandID, "message", message)

	var band models.Band
	database.DB.First(&band, "id = ?", bandID)
	go services.GetNotificationService().NotifyChatMessage(
		band.ID.String(), band.Name, message.User.Name, message.Content,
		memberFCMTokens(bandID, userID))

	utils.SuccessResponse(c, http.StatusCreated, "Message sent", message)
}
