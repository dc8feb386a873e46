package api

import (
	"net/http"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	reservationService service.ReservationService
}

func NewBookingHandler(reservationService service.ReservationService) *BookingHandler {
	return &BookingHandler{reservationService: reservationService}
}

// --- DTOs ---

type JoinRequest struct {
	TermID string `json:"termId" binding:"required"`
}

type BookingResponse struct {
	ID          string               `json:"id"`
	TermID      string               `json:"termId"`
	UserID      string               `json:"userId"`
	Status      domain.BookingStatus `json:"status"`
	CancelledAt *time.Time           `json:"cancelledAt"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// MyBookingResponse is an active booking with the term it belongs to.
type MyBookingResponse struct {
	BookingResponse
	Term TermResponse `json:"term"`
}

// --- Handler Methods ---

// Join godoc
// @Summary Book the caller onto a term
// @Description Returns 201 for a new booking and 200 when a cancelled booking was reactivated.
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param join body JoinRequest true "Term to join"
// @Success 201 {object} gin.H "{booking}"
// @Success 200 {object} gin.H "{booking}"
// @Failure 404 {object} gin.H "Term not found"
// @Failure 409 {object} gin.H "Term full, weekly limit, already booked or term not joinable"
// @Router /bookings [post]
func (h *BookingHandler) Join(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	termID, ok := parseOptionalObjectID(c, &req.TermID, "invalid termId")
	if !ok {
		return
	}

	booking, created, err := h.reservationService.Join(c.Request.Context(), principal, *termID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"booking": MapBookingToResponse(booking)})
}

// CancelByTerm godoc
// @Summary Cancel the caller's booking on a term
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param termId path string true "Term ID"
// @Success 200 {object} gin.H "{booking}"
// @Failure 400 {object} gin.H "Invalid termId"
// @Failure 404 {object} gin.H "Term or active booking not found"
// @Failure 409 {object} gin.H "Term is not scheduled"
// @Router /bookings/cancel-by-term/{termId} [post]
func (h *BookingHandler) CancelByTerm(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "termId", "invalid termId")
	if !ok {
		return
	}
	booking, err := h.reservationService.CancelByTerm(c.Request.Context(), principal, termID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": MapBookingToResponse(booking)})
}

// ListMine godoc
// @Summary List the caller's active bookings on scheduled terms, newest first
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} gin.H "{bookings}"
// @Router /bookings/mine [get]
func (h *BookingHandler) ListMine(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	items, err := h.reservationService.ListMine(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]MyBookingResponse, len(items))
	for i := range items {
		term := MapTermToResponse(&items[i].Term)
		term.TrainerName = items[i].TrainerName
		out[i] = MyBookingResponse{
			BookingResponse: MapBookingToResponse(&items[i].Booking),
			Term:            term,
		}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// MapBookingToResponse converts a domain Booking to its DTO.
func MapBookingToResponse(b *domain.Booking) BookingResponse {
	if b == nil {
		return BookingResponse{}
	}
	return BookingResponse{
		ID:          b.ID.Hex(),
		TermID:      b.TermID.Hex(),
		UserID:      b.UserID.Hex(),
		Status:      b.Status,
		CancelledAt: b.CancelledAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}
