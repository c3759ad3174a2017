package websocket

import (
	"encoding/json"
	"log"
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// HandleConnection upgrades an authenticated request to a websocket.
// Browsers can't set headers on websocket dials, so the session token
// comes in as a query parameter.
func HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	userID, _, err := utils.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("error upgrading connection: %v", err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		bands:  make(map[uuid.UUID]bool),
	}

	client.hub.register <- client

	go client.readPump()
	go client.writePump()
}

// MessagePayload represents the structure of a chat message payload
type MessagePayload struct {
	BandID  uuid.UUID `json:"band_id"`
	Content string    `json:"content"`
}

// HandleIncomingMessage processes an incoming WebSocket message
func HandleIncomingMessage(client *Client, messageBytes []byte) {
	var msg Message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case "join_band":
		if raw, ok := msg.Payload.(string); ok {
			bandID, err := uuid.Parse(raw)
			if err != nil {
				return
			}
			// Only band members get into the room
			if !isBandMember(bandID, client.userID) {
				log.Printf("user %s attempted to join band %s without membership", client.userID, bandID)
				return
			}
			client.joinBand(bandID)
		}
	case "leave_band":
		if raw, ok := msg.Payload.(string); ok {
			bandID, err := uuid.Parse(raw)
			if err != nil {
				return
			}
			client.leaveBand(bandID)
		}
	case "message":
		payloadBytes, err := json.Marshal(msg.Payload)
		if err != nil {
			log.Printf("error marshaling payload: %v", err)
			return
		}

		var payload MessagePayload
		if err := json.Unmarshal(payloadBytes, &payload); err != nil {
			log.Printf("error unmarshaling message payload: %v", err)
			return
		}

		if !client.inBand(payload.BandID) {
			log.Printf("user %s attempted to send to band %s without joining",
				client.userID, payload.BandID)
			return
		}

		saved, err := saveMessage(client.userID, payload)
		if err != nil {
			log.Printf("error saving message: %v", err)
			return
		}

		responseBytes, err := json.Marshal(Message{Type: "message", Payload: saved})
		if err != nil {
			log.Printf("error marshaling response message: %v", err)
			return
		}

		client.hub.broadcastToBand(payload.BandID, responseBytes)
	}
}

// saveMessage persists a chat message and returns it with the sender loaded
func saveMessage(userID uuid.UUID, payload MessagePayload) (models.Message, error) {
	message := models.Message{
		BandID:  payload.BandID,
		UserID:  userID,
		Content: payload.Content,
	}

	if err := database.DB.Create(&message).Error; err != nil {
		return message, err
	}

	if err := database.DB.Preload("User").First(&message, "id = ?", message.ID).Error; err != nil {
		log.Printf("error loading user data for message: %v", err)
	}

	return message, nil
}

func isBandMember(bandID, userID uuid.UUID) bool {
	var count int64
	database.DB.Model(&models.BandMember{}).
		Where("band_id = ? AND user_id = ?", bandID, userID).Count(&count)
	return count > 0
}
