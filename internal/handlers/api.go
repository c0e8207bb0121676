package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plateful/plateful/internal/loyalty"
	"github.com/plateful/plateful/internal/models"
)

// APIHandler exposes the loyalty core over HTTP.
type APIHandler struct {
	coordinator *loyalty.StatusCoordinator
	gifts       *loyalty.GiftService
	events      *loyalty.EventService
	tokens      map[string]models.APIToken
}

func NewAPIHandler(coordinator *loyalty.StatusCoordinator, gifts *loyalty.GiftService, events *loyalty.EventService, tokens []models.APIToken) *APIHandler {
	byToken := make(map[string]models.APIToken, len(tokens))
	for _, t := range tokens {
		byToken[t.Token] = t
	}
	return &APIHandler{
		coordinator: coordinator,
		gifts:       gifts,
		events:      events,
		tokens:      byToken,
	}
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/loyalty/events", h.RecordLoyaltyEvent)

		authed := api.Group("")
		authed.Use(h.requireAuth())
		{
			authed.PATCH("/orders/:id/status", h.UpdateOrderStatus)
			authed.POST("/gifts/:id/convert", h.ConvertGiftToPoints)
			authed.GET("/loyalty/status", h.GetLoyaltyStatus)
		}
	}
}

// requireAuth resolves the bearer token to a caller identity. Token issuance
// and sessions live outside this service; the static table is the seam.
func (h *APIHandler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid authorization header"})
			return
		}
		identity, ok := h.tokens[strings.TrimPrefix(header, "Bearer ")]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("caller", loyalty.Caller{Role: identity.Role, RestaurantID: identity.RestaurantID})
		c.Next()
	}
}

func callerFrom(c *gin.Context) loyalty.Caller {
	caller, _ := c.Get("caller")
	identity, _ := caller.(loyalty.Caller)
	return identity
}

// writeError maps the loyalty error taxonomy onto HTTP status codes. Raw
// internal errors stay in the server log.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loyalty.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus handles order status transitions.
func (h *APIHandler) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.coordinator.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"message": "Order status updated to " + order.Status,
	})
}

type convertGiftRequest struct {
	VisitorID    string   `json:"visitor_id"`
	RestaurantID string   `json:"restaurant_id"`
	OrderTotal   *float64 `json:"order_total,omitempty"`
}

// ConvertGiftToPoints exchanges an unused gift for loyalty points.
func (h *APIHandler) ConvertGiftToPoints(c *gin.Context) {
	var req convertGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	addedPoints, err := h.gifts.ConvertToPoints(c.Request.Context(), c.Param("id"), req.VisitorID, req.RestaurantID, req.OrderTotal)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"addedPoints": addedPoints})
}

type loyaltyEventRequest struct {
	RestaurantName string `json:"restaurant_name"`
	VisitorID      string `json:"visitor_id"`
	EventType      string `json:"event_type"`
}

// RecordLoyaltyEvent ingests a visitor-side analytics event.
func (h *APIHandler) RecordLoyaltyEvent(c *gin.Context) {
	var req loyaltyEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cfg, err := h.events.RecordEvent(c.Request.Context(), req.RestaurantName, req.VisitorID, req.EventType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"loyalty_config": cfg})
}

// GetLoyaltyStatus serves the owner dashboard aggregate for the caller's
// restaurant.
func (h *APIHandler) GetLoyaltyStatus(c *gin.Context) {
	caller := callerFrom(c)
	restaurantID := caller.RestaurantID
	if caller.Role == models.RoleAdmin {
		if q := c.Query("restaurant_id"); q != "" {
			restaurantID = q
		}
	}
	if restaurantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No restaurant associated with caller"})
		return
	}

	status, err := h.events.Status(c.Request.Context(), restaurantID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
