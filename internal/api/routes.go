package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Auth         service.AuthService
	Terms        service.TermService
	Reservations service.ReservationService
	Admin        service.AdminService
	// HealthCheck reports backend reachability for /health; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

func SetupRoutes(router *gin.Engine, svc Services) {
	authHandler := NewAuthHandler(svc.Auth)
	termHandler := NewTermHandler(svc.Terms, svc.Reservations)
	bookingHandler := NewBookingHandler(svc.Reservations)
	adminHandler := NewAdminHandler(svc.Admin)

	authMiddleware := AuthMiddleware(svc.Auth)
	staffOnly := RoleMiddleware(domain.RoleTrainer, domain.RoleAdmin)
	adminOnly := RoleMiddleware(domain.RoleAdmin)

	router.Use(RequestIDMiddleware())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/health", healthHandler(svc.HealthCheck))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", authHandler.Me)

		// --- Term Routes ---
		termGroup := protected.Group("/terms")
		{
			termGroup.GET("", termHandler.ListTerms)
			termGroup.POST("", staffOnly, termHandler.CreateTerm)
			termGroup.POST("/generate-week", adminOnly, termHandler.GenerateWeek)
			termGroup.GET("/:id", termHandler.GetTerm)
			termGroup.PATCH("/:id", staffOnly, termHandler.UpdateTerm)
			termGroup.DELETE("/:id", staffOnly, termHandler.DeleteTerm)
			termGroup.POST("/:id/cancel", staffOnly, termHandler.CancelTerm)

			// Roster management
			termGroup.GET("/:id/bookings", staffOnly, termHandler.ListTermBookings)
			termGroup.POST("/:id/bookings/:userId/remove", staffOnly, termHandler.RemoveMember)
			termGroup.POST("/:id/bookings/:userId/restore", staffOnly, termHandler.RestoreMember)
		}

		// --- Booking Routes ---
		bookingGroup := protected.Group("/bookings")
		{
			bookingGroup.POST("", bookingHandler.Join)
			bookingGroup.POST("/cancel-by-term/:termId", bookingHandler.CancelByTerm)
			bookingGroup.GET("/mine", bookingHandler.ListMine)
		}

		// --- Admin Routes ---
		adminGroup := protected.Group("/admin")
		adminGroup.Use(adminOnly)
		{
			adminGroup.GET("/users", adminHandler.ListUsers)
			adminGroup.PATCH("/users/:id/role", adminHandler.ChangeRole)
		}
	}
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Printf("WARN: Health check failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
