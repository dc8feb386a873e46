package service

import (
	"context"
	"errors"
	"log"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"
	"mnfit/studio-api/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PurgeResult reports what one retention run removed.
type PurgeResult struct {
	Cutoff          time.Time
	TermsDeleted    int64
	BookingsDeleted int64
	ArchiveKey      string
}

// LifecycleService applies time-driven term transitions and the retention purge.
type LifecycleService interface {
	// MaterializeDueTransitions finishes every scheduled term whose start has passed. Idempotent.
	MaterializeDueTransitions(ctx context.Context) (int64, error)
	// PurgeExpired deletes finished terms that ended before now minus the retention window,
	// together with their bookings.
	PurgeExpired(ctx context.Context) (PurgeResult, error)
}

type lifecycleService struct {
	termRepo    repository.TermRepository
	bookingRepo repository.BookingRepository
	archiver    storage.RetentionArchiver // nil disables archiving
	clock       Clock
	policy      Policy
}

// NewLifecycleService creates the sweeper. archiver may be nil.
func NewLifecycleService(
	termRepo repository.TermRepository,
	bookingRepo repository.BookingRepository,
	archiver storage.RetentionArchiver,
	clock Clock,
	policy Policy,
) LifecycleService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &lifecycleService{
		termRepo:    termRepo,
		bookingRepo: bookingRepo,
		archiver:    archiver,
		clock:       clock,
		policy:      policy.withDefaults(),
	}
}

func (s *lifecycleService) MaterializeDueTransitions(ctx context.Context) (int64, error) {
	n, err := s.termRepo.FinishDue(ctx, s.clock.Now())
	if err != nil {
		log.Printf("ERROR: LifecycleService.MaterializeDueTransitions: %v", err)
		return 0, internalError(err)
	}
	if n > 0 {
		log.Printf("INFO: Finished %d due terms", n)
	}
	return n, nil
}

func (s *lifecycleService) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	now := s.clock.Now()
	result := PurgeResult{Cutoff: now.Add(-s.policy.Retention)}

	expired, err := s.termRepo.ListFinishedEndedBefore(ctx, result.Cutoff)
	if err != nil {
		return result, internalError(err)
	}
	if len(expired) == 0 {
		return result, nil
	}

	ids := make([]primitive.ObjectID, len(expired))
	for i := range expired {
		ids[i] = expired[i].ID
	}

	if s.archiver != nil {
		bookings, err := s.bookingRepo.ListByTerms(ctx, ids)
		if err != nil {
			return result, internalError(err)
		}
		key, err := s.archiver.Archive(ctx, storage.PurgeBatch{
			Cutoff:   result.Cutoff,
			PurgedAt: now,
			Terms:    expired,
			Bookings: bookings,
		})
		if err != nil {
			// Nothing is deleted without its archive; the next run retries.
			return result, internalError(err)
		}
		result.ArchiveKey = key
	}

	// Bookings go first so no booking is ever left pointing at a deleted term.
	result.BookingsDeleted, err = s.bookingRepo.DeleteByTerms(ctx, ids)
	if err != nil {
		return result, internalError(err)
	}
	result.TermsDeleted, err = s.termRepo.DeleteFinished(ctx, ids)
	if err != nil {
		return result, internalError(err)
	}

	log.Printf("INFO: Retention purged %d terms and %d bookings ended before %s",
		result.TermsDeleted, result.BookingsDeleted, result.Cutoff.Format(time.RFC3339))
	return result, nil
}

// finishIfDue persists the scheduled -> finished flip for a single term that is already due.
// A concurrent flip by the sweeper is not an error.
func finishIfDue(ctx context.Context, termRepo repository.TermRepository, term *domain.Term, now time.Time) error {
	if !term.IsDue(now) {
		return nil
	}
	err := transitionTerm(ctx, termRepo, term, domain.TermFinished, now)
	if err != nil && !errors.Is(err, repository.ErrUpdateFailed) {
		return err
	}
	term.Status = domain.TermFinished
	return nil
}

// transitionTerm moves term to status to, stamped with now. A move the lifecycle does not
// allow is reported as repository.ErrUpdateFailed without touching the store.
func transitionTerm(ctx context.Context, termRepo repository.TermRepository, term *domain.Term, to domain.TermStatus, now time.Time) error {
	if !term.Status.CanTransition(to) {
		return repository.ErrUpdateFailed
	}
	if err := termRepo.TransitionStatus(ctx, term.ID, term.Status, to, now); err != nil {
		return err
	}
	term.Status = to
	term.UpdatedAt = now
	return nil
}
