package repository

import (
	"context"
	"time"

	"mnfit/studio-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error)
	List(ctx context.Context) ([]domain.User, error) // Newest first
	UpdateRole(ctx context.Context, id primitive.ObjectID, role domain.Role) (*domain.User, error)
}

// TermRepository defines the interface for interacting with term data.
type TermRepository interface {
	Create(ctx context.Context, term *domain.Term) (primitive.ObjectID, error)
	CreateMany(ctx context.Context, terms []*domain.Term) ([]primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Term, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Term, error)
	// Update persists mutable fields (capacity, times, status, trainer, description) provided the
	// stored status still equals expected; otherwise it returns ErrUpdateFailed.
	// term.UpdatedAt is written as given and only stamped by the store when zero.
	Update(ctx context.Context, term *domain.Term, expected domain.TermStatus) error
	// TransitionStatus moves a term from one status to another only if it is still in from,
	// stamping updatedAt with at.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.TermStatus, at time.Time) error

	// HasOverlap reports whether any scheduled term other than excludeID intersects [start, end).
	HasOverlap(ctx context.Context, start, end time.Time, excludeID *primitive.ObjectID) (bool, error)
	// FinishDue flips scheduled terms with startsAt <= now to finished.
	FinishDue(ctx context.Context, now time.Time) (int64, error)
	// ListScheduledAfter returns scheduled terms starting after now, earliest first.
	ListScheduledAfter(ctx context.Context, now time.Time) ([]domain.Term, error)
	// ListFinishedEndedBefore returns finished terms whose endsAt is older than cutoff.
	ListFinishedEndedBefore(ctx context.Context, cutoff time.Time) ([]domain.Term, error)

	Delete(ctx context.Context, id primitive.ObjectID) error
	// DeleteFinished removes the given terms, skipping any that are not finished.
	DeleteFinished(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// BookingRepository defines the interface for interacting with booking data.
type BookingRepository interface {
	// Create returns ErrDuplicate when a booking already exists for the (term, user) pair.
	Create(ctx context.Context, booking *domain.Booking) (primitive.ObjectID, error)
	GetByTermAndUser(ctx context.Context, termID, userID primitive.ObjectID) (*domain.Booking, error)
	// UpdateStatus persists status, cancelledAt and updatedAt (stamped by the store when zero).
	UpdateStatus(ctx context.Context, booking *domain.Booking) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	CountActiveByTerm(ctx context.Context, termID primitive.ObjectID) (int64, error)
	CountActiveByTerms(ctx context.Context, termIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
	// CountActiveForUserInRange counts the user's active bookings whose term starts in [from, to),
	// ignoring the booking on excludeTermID when set.
	CountActiveForUserInRange(ctx context.Context, userID primitive.ObjectID, from, to time.Time, excludeTermID *primitive.ObjectID) (int64, error)

	ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Booking, error) // Newest first
	ListByTerm(ctx context.Context, termID primitive.ObjectID) ([]domain.Booking, error)
	ListByTerms(ctx context.Context, termIDs []primitive.ObjectID) ([]domain.Booking, error)

	// CancelActiveByTerm moves every active booking of a term to status, stamping at.
	CancelActiveByTerm(ctx context.Context, termID primitive.ObjectID, status domain.BookingStatus, at time.Time) (int64, error)
	DeleteByTerms(ctx context.Context, termIDs []primitive.ObjectID) (int64, error)
}
