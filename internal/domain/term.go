package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TermStatus type for term lifecycle
type TermStatus string

const (
	TermScheduled TermStatus = "scheduled"
	TermCancelled TermStatus = "cancelled" // Manually cancelled by staff
	TermFinished  TermStatus = "finished"  // Start time has passed
)

// Valid reports whether s is a known term status.
func (s TermStatus) Valid() bool {
	return s == TermScheduled || s == TermCancelled || s == TermFinished
}

// CanTransition reports whether a term may move from s to next.
// Only scheduled terms move; finished and cancelled are terminal.
func (s TermStatus) CanTransition(next TermStatus) bool {
	if s != TermScheduled {
		return false
	}
	return next == TermFinished || next == TermCancelled
}

// Term is a bookable time slot in the studio.
type Term struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Capacity           int                `bson:"capacity" json:"capacity"`
	StartsAt           time.Time          `bson:"startsAt" json:"startsAt"`
	EndsAt             time.Time          `bson:"endsAt" json:"endsAt"`
	Status             TermStatus         `bson:"status" json:"status"`
	TrainerID          primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	WorkoutDescription string             `bson:"workoutDescription" json:"workoutDescription"`
	CreatedBy          primitive.ObjectID `bson:"createdBy" json:"createdBy"` // Set once on insert
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// InitialStatus picks the status of a term created or rescheduled at now.
// A term whose start is not in the future is finished straight away.
func InitialStatus(startsAt, now time.Time) TermStatus {
	if !startsAt.After(now) {
		return TermFinished
	}
	return TermScheduled
}

// Overlaps is the half-open interval test used for scheduled terms.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// IsDue reports whether a scheduled term should be materialized as finished.
func (t *Term) IsDue(now time.Time) bool {
	return t.Status == TermScheduled && !t.StartsAt.After(now)
}
