package api

import (
	"context"
	"net/http"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TermHandler serves term administration and the staff roster.
type TermHandler struct {
	termService        service.TermService
	reservationService service.ReservationService
}

func NewTermHandler(termService service.TermService, reservationService service.ReservationService) *TermHandler {
	return &TermHandler{
		termService:        termService,
		reservationService: reservationService,
	}
}

// --- DTOs ---

type CreateTermRequest struct {
	Capacity           int        `json:"capacity"`
	StartsAt           *time.Time `json:"startsAt"`
	EndsAt             *time.Time `json:"endsAt"`
	WorkoutDescription string     `json:"workoutDescription"`
	TrainerID          *string    `json:"trainerId"`
}

// UpdateTermRequest uses pointers so omitted fields are left unchanged.
type UpdateTermRequest struct {
	Capacity           *int       `json:"capacity"`
	StartsAt           *time.Time `json:"startsAt"`
	EndsAt             *time.Time `json:"endsAt"`
	WorkoutDescription *string    `json:"workoutDescription"`
	TrainerID          *string    `json:"trainerId"`
}

type GenerateWeekRequest struct {
	DaysOfWeek         []int   `json:"daysOfWeek"`
	TermsPerDay        int     `json:"termsPerDay"`
	Capacity           *int    `json:"capacity"`
	WorkoutDescription string  `json:"workoutDescription"`
	TrainerID          *string `json:"trainerId"`
	DateFrom           string  `json:"dateFrom"`
}

type TermResponse struct {
	ID                 string            `json:"id"`
	Capacity           int               `json:"capacity"`
	StartsAt           time.Time         `json:"startsAt"`
	EndsAt             time.Time         `json:"endsAt"`
	Status             domain.TermStatus `json:"status"`
	TrainerID          string            `json:"trainerId"`
	TrainerName        string            `json:"trainerName,omitempty"`
	WorkoutDescription string            `json:"workoutDescription"`
	BookedCount        *int64            `json:"bookedCount,omitempty"`
	CreatedBy          string            `json:"createdBy"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

type SkippedSlotResponse struct {
	Dow      int        `json:"dow"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
	Reason   string     `json:"reason"`
}

type GenerateWeekResponse struct {
	WeekStart     time.Time             `json:"weekStart"`
	InsertedCount int                   `json:"insertedCount"`
	SkippedCount  int                   `json:"skippedCount"`
	Skipped       []SkippedSlotResponse `json:"skipped"`
	Terms         []TermResponse        `json:"terms"`
}

type RosterEntryResponse struct {
	Booking     BookingResponse `json:"booking"`
	MemberName  string          `json:"memberName"`
	MemberEmail string          `json:"memberEmail"`
}

// --- Handler Methods ---

// ListTerms godoc
// @Summary List upcoming scheduled terms with their booked counts
// @Tags Terms
// @Produce json
// @Security BearerAuth
// @Success 200 {object} gin.H "{terms}"
// @Router /terms [get]
func (h *TermHandler) ListTerms(c *gin.Context) {
	terms, err := h.termService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]TermResponse, len(terms))
	for i := range terms {
		out[i] = MapTermDetailsToResponse(&terms[i])
	}
	c.JSON(http.StatusOK, gin.H{"terms": out})
}

// GetTerm godoc
// @Summary Get a term with its booked count
// @Tags Terms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Success 200 {object} gin.H "{term}"
// @Failure 400 {object} gin.H "Invalid term id"
// @Failure 404 {object} gin.H "Term not found"
// @Router /terms/{id} [get]
func (h *TermHandler) GetTerm(c *gin.Context) {
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	term, err := h.termService.Get(c.Request.Context(), termID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"term": MapTermDetailsToResponse(term)})
}

// CreateTerm godoc
// @Summary Create a term
// @Description Trainers always own the terms they create; admins may name a trainer.
// @Tags Terms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param term body CreateTermRequest true "Term"
// @Success 201 {object} gin.H "{term}"
// @Failure 400 {object} gin.H "Invalid capacity or time range"
// @Failure 409 {object} gin.H "Term overlaps existing term"
// @Router /terms [post]
func (h *TermHandler) CreateTerm(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req CreateTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if req.StartsAt == nil || req.EndsAt == nil {
		abortWithError(c, http.StatusBadRequest, "invalid startsAt/endsAt")
		return
	}
	trainerID, ok := parseOptionalObjectID(c, req.TrainerID, "invalid trainerId")
	if !ok {
		return
	}

	term, err := h.termService.Create(c.Request.Context(), principal, service.TermInput{
		Capacity:           req.Capacity,
		StartsAt:           *req.StartsAt,
		EndsAt:             *req.EndsAt,
		WorkoutDescription: req.WorkoutDescription,
		TrainerID:          trainerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"term": MapTermToResponse(term)})
}

// UpdateTerm godoc
// @Summary Edit a term
// @Description Omitted fields are left unchanged. Only admins may change trainerId.
// @Tags Terms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Param term body UpdateTermRequest true "Fields to change"
// @Success 200 {object} gin.H "{term}"
// @Failure 400 {object} gin.H "Invalid capacity, time range or trainerId"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term not found"
// @Failure 409 {object} gin.H "Overlap, capacity below booked or a member over the weekly limit"
// @Router /terms/{id} [patch]
func (h *TermHandler) UpdateTerm(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	var req UpdateTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	trainerID, ok := parseOptionalObjectID(c, req.TrainerID, "invalid trainerId")
	if !ok {
		return
	}

	term, err := h.termService.Edit(c.Request.Context(), principal, termID, service.TermPatch{
		Capacity:           req.Capacity,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		WorkoutDescription: req.WorkoutDescription,
		TrainerID:          trainerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"term": MapTermToResponse(term)})
}

// DeleteTerm godoc
// @Summary Delete a term together with its bookings
// @Tags Terms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Success 200 {object} gin.H "{ok}"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term not found"
// @Router /terms/{id} [delete]
func (h *TermHandler) DeleteTerm(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	if err := h.termService.Delete(c.Request.Context(), principal, termID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CancelTerm godoc
// @Summary Cancel a scheduled term
// @Description Active bookings become term_cancelled. Repeating the call finishes a cancel that failed halfway.
// @Tags Terms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Success 200 {object} gin.H "{term, bookingsCancelled}"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term not found"
// @Failure 409 {object} gin.H "Term is not scheduled"
// @Router /terms/{id}/cancel [post]
func (h *TermHandler) CancelTerm(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	term, affected, err := h.termService.Cancel(c.Request.Context(), principal, termID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"term": MapTermToResponse(term), "bookingsCancelled": affected})
}

// GenerateWeek godoc
// @Summary Generate next week's terms from a slot template
// @Description Partial success is normal: colliding or invalid slots are reported in skipped.
// @Tags Terms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param batch body GenerateWeekRequest true "Batch"
// @Success 201 {object} GenerateWeekResponse
// @Failure 400 {object} gin.H "Invalid daysOfWeek, termsPerDay, capacity or dateFrom"
// @Router /terms/generate-week [post]
func (h *TermHandler) GenerateWeek(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req GenerateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	trainerID, ok := parseOptionalObjectID(c, req.TrainerID, "invalid trainerId")
	if !ok {
		return
	}
	capacity := service.DefaultGenerateCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}

	res, err := h.termService.GenerateWeek(c.Request.Context(), principal, service.GenerateWeekInput{
		DaysOfWeek:         req.DaysOfWeek,
		TermsPerDay:        req.TermsPerDay,
		Capacity:           capacity,
		WorkoutDescription: req.WorkoutDescription,
		TrainerID:          trainerID,
		DateFrom:           req.DateFrom,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := GenerateWeekResponse{
		WeekStart:     res.WeekStart,
		InsertedCount: res.InsertedCount,
		SkippedCount:  res.SkippedCount,
		Skipped:       make([]SkippedSlotResponse, len(res.Skipped)),
		Terms:         make([]TermResponse, len(res.Terms)),
	}
	for i, s := range res.Skipped {
		resp.Skipped[i] = SkippedSlotResponse{Dow: s.Dow, StartsAt: s.StartsAt, EndsAt: s.EndsAt, Reason: s.Reason}
	}
	for i, t := range res.Terms {
		resp.Terms[i] = MapTermToResponse(t)
	}
	c.JSON(http.StatusCreated, resp)
}

// --- Roster ---

// ListTermBookings godoc
// @Summary List every booking on a term with member names
// @Tags Roster
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Success 200 {object} gin.H "{bookings}"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term not found"
// @Router /terms/{id}/bookings [get]
func (h *TermHandler) ListTermBookings(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	entries, err := h.reservationService.ListTermBookings(c.Request.Context(), principal, termID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]RosterEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = RosterEntryResponse{
			Booking:     MapBookingToResponse(&e.Booking),
			MemberName:  e.MemberName,
			MemberEmail: e.MemberEmail,
		}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// RemoveMember godoc
// @Summary Remove a member from a term
// @Description The booking becomes term_cancelled and only staff can restore it.
// @Tags Roster
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Param userId path string true "Member ID"
// @Success 200 {object} gin.H "{booking}"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term or active booking not found"
// @Failure 409 {object} gin.H "Term is not scheduled"
// @Router /terms/{id}/bookings/{userId}/remove [post]
func (h *TermHandler) RemoveMember(c *gin.Context) {
	h.staffBookingAction(c, h.reservationService.RemoveMember)
}

// RestoreMember godoc
// @Summary Restore a member removed by staff
// @Tags Roster
// @Produce json
// @Security BearerAuth
// @Param id path string true "Term ID"
// @Param userId path string true "Member ID"
// @Success 200 {object} gin.H "{booking}"
// @Failure 403 {object} gin.H "Not the term's trainer"
// @Failure 404 {object} gin.H "Term or booking not found"
// @Failure 409 {object} gin.H "Booking not restorable, term full or weekly limit"
// @Router /terms/{id}/bookings/{userId}/restore [post]
func (h *TermHandler) RestoreMember(c *gin.Context) {
	h.staffBookingAction(c, h.reservationService.RestoreMember)
}

type staffBookingFunc func(ctx context.Context, p domain.Principal, termID, userID primitive.ObjectID) (*domain.Booking, error)

func (h *TermHandler) staffBookingAction(c *gin.Context, action staffBookingFunc) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	termID, ok := parseObjectIDParam(c, "id", "invalid term id")
	if !ok {
		return
	}
	userID, ok := parseObjectIDParam(c, "userId", "invalid user id")
	if !ok {
		return
	}
	booking, err := action(c.Request.Context(), principal, termID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": MapBookingToResponse(booking)})
}

// --- Mapping ---

// MapTermToResponse converts a domain Term to its DTO.
func MapTermToResponse(t *domain.Term) TermResponse {
	if t == nil {
		return TermResponse{}
	}
	return TermResponse{
		ID:                 t.ID.Hex(),
		Capacity:           t.Capacity,
		StartsAt:           t.StartsAt,
		EndsAt:             t.EndsAt,
		Status:             t.Status,
		TrainerID:          t.TrainerID.Hex(),
		WorkoutDescription: t.WorkoutDescription,
		CreatedBy:          t.CreatedBy.Hex(),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func MapTermDetailsToResponse(d *service.TermDetails) TermResponse {
	resp := MapTermToResponse(&d.Term)
	count := d.BookedCount
	resp.BookedCount = &count
	resp.TrainerName = d.TrainerName
	return resp
}

// --- Param helpers ---

func parseObjectIDParam(c *gin.Context, name, message string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, message)
		return primitive.NilObjectID, false
	}
	return id, true
}

func parseOptionalObjectID(c *gin.Context, raw *string, message string) (*primitive.ObjectID, bool) {
	if raw == nil {
		return nil, true
	}
	id, err := primitive.ObjectIDFromHex(*raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, message)
		return nil, false
	}
	return &id, true
}
