package main

import (
	"log"
	"time"

	"bandmate-backend/config"
	"bandmate-backend/database"
	"bandmate-backend/handlers"
	"bandmate-backend/middleware"
	"bandmate-backend/services"
	"bandmate-backend/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.Load()

	// Connect to database
	database.Connect()

	// Connect to Redis (optional, won't crash if unavailable)
	database.ConnectRedis()

	// Wire the invitation service
	handlers.InviteSvc = services.NewInviteService(
		database.DB,
		database.Redis,
		services.GetNotificationService(),
		config.AppConfig.AppURL,
		time.Duration(config.AppConfig.InviteTTLDays)*24*time.Hour,
	)

	// Start the chat hub
	websocket.InitHub()

	// Setup router
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": config.AppConfig.AppName,
		})
	})

	// ==========================================
	// AUTH ROUTES (public)
	// ==========================================
	auth := r.Group("/auth")
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
	}

	// ==========================================
	// INVITE ROUTES (token-addressed)
	// ==========================================
	// The preview is public: the invitee may not have an account yet.
	// Acceptance requires a signed-in caller.
	r.GET("/invites/:token", handlers.GetInvite)
	r.POST("/invites/:token/accept", middleware.AuthRequired(), handlers.AcceptInvite)

	// ==========================================
	// API ROUTES (authenticated)
	// ==========================================
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	{
		// User
		api.GET("/users/me", handlers.GetProfile)
		api.PUT("/users/me", handlers.UpdateProfile)
		api.PUT("/users/me/fcm-token", handlers.UpdateFCMToken)
		api.POST("/users/search", handlers.SearchUsers)

		// Bands
		api.POST("/bands", handlers.CreateBand)
		api.GET("/bands", handlers.GetBands)
		api.GET("/bands/:id", handlers.GetBand)
		api.PUT("/bands/:id", handlers.UpdateBand)
		api.DELETE("/bands/:id/members/:uid", handlers.RemoveMember)

		// Invitations
		api.POST("/bands/:id/invites", handlers.IssueInvite)
		api.GET("/bands/:id/invites", handlers.ListInvites)
		api.DELETE("/bands/:id/invites/:inviteId", handlers.RevokeInvite)

		// Events
		api.POST("/bands/:id/events", handlers.CreateEvent)
		api.GET("/bands/:id/events", handlers.GetBandEvents)
		api.GET("/events/:id", handlers.GetEvent)
		api.PUT("/events/:id", handlers.UpdateEvent)
		api.DELETE("/events/:id", handlers.DeleteEvent)
		api.PUT("/events/:id/attendance", handlers.UpdateAttendance)
		api.GET("/events/:id/attendance", handlers.GetEventAttendance)

		// Chat
		api.GET("/bands/:id/messages", handlers.GetBandMessages)
		api.POST("/bands/:id/messages", handlers.CreateMessage)

		// Activity
		api.GET("/activity", handlers.GetActivity)
		api.GET("/bands/:id/activity", handlers.GetBandActivity)
	}

	// WebSocket route
	r.GET("/ws", websocket.HandleConnection)

	// Start server
	port := config.AppConfig.Port
	log.Printf("🚀 %s server starting on port %s", config.AppConfig.AppName, port)

	addr := "0.0.0.0:" + port
	log.Printf("🚀 Listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
