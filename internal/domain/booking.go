package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingStatus type for booking lifecycle
type BookingStatus string

const (
	BookingActive        BookingStatus = "active"
	BookingCancelled     BookingStatus = "cancelled"      // Cancelled by the member
	BookingTermCancelled BookingStatus = "term_cancelled" // Cancelled by staff, member cannot undo
)

// Booking links a member to a term. There is at most one Booking per (term, user);
// the same document is reused across cancel/rejoin cycles.
type Booking struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TermID      primitive.ObjectID `bson:"termId" json:"termId"`
	UserID      primitive.ObjectID `bson:"userId" json:"userId"`
	Status      BookingStatus      `bson:"status" json:"status"`
	CancelledAt *time.Time         `bson:"cancelledAt" json:"cancelledAt"` // nil while active
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Activate puts the booking back into the active state.
func (b *Booking) Activate(at time.Time) {
	b.Status = BookingActive
	b.CancelledAt = nil
	b.UpdatedAt = at
}

// Deactivate moves an active booking to status, stamping the cancellation time.
func (b *Booking) Deactivate(status BookingStatus, at time.Time) {
	b.Status = status
	t := at
	b.CancelledAt = &t
	b.UpdatedAt = at
}
