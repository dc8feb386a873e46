package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TermInput holds the fields for a new term. TrainerID is honoured for admins only.
type TermInput struct {
	Capacity           int
	StartsAt           time.Time
	EndsAt             time.Time
	WorkoutDescription string
	TrainerID          *primitive.ObjectID
}

// TermPatch is a partial edit; nil fields are left as they are.
type TermPatch struct {
	Capacity           *int
	StartsAt           *time.Time
	EndsAt             *time.Time
	WorkoutDescription *string
	TrainerID          *primitive.ObjectID
}

// TermDetails is a term with its active booking count and the trainer's display name.
type TermDetails struct {
	domain.Term
	BookedCount int64
	TrainerName string
}

// TermService administers terms: create, edit, cancel, delete, list and week generation.
type TermService interface {
	Create(ctx context.Context, p domain.Principal, in TermInput) (*domain.Term, error)
	Edit(ctx context.Context, p domain.Principal, termID primitive.ObjectID, patch TermPatch) (*domain.Term, error)
	Delete(ctx context.Context, p domain.Principal, termID primitive.ObjectID) error
	// Cancel moves a scheduled term to cancelled and returns how many bookings were term-cancelled.
	Cancel(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Term, int64, error)
	List(ctx context.Context) ([]TermDetails, error)
	Get(ctx context.Context, termID primitive.ObjectID) (*TermDetails, error)
	GenerateWeek(ctx context.Context, p domain.Principal, in GenerateWeekInput) (*GenerateWeekResult, error)
}

type termService struct {
	termRepo    repository.TermRepository
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
	lifecycle   LifecycleService
	locks       *KeyedLocker
	clock       Clock
	policy      Policy
}

// NewTermService creates the term administration service. locks is shared with the reservation engine.
func NewTermService(
	termRepo repository.TermRepository,
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	lifecycle LifecycleService,
	locks *KeyedLocker,
	clock Clock,
	policy Policy,
) TermService {
	if clock == nil {
		clock = SystemClock{}
	}
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &termService{
		termRepo:    termRepo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		lifecycle:   lifecycle,
		locks:       locks,
		clock:       clock,
		policy:      policy.withDefaults(),
	}
}

func validateRange(startsAt, endsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return invalidInput("startsAt and endsAt are required")
	}
	if !endsAt.After(startsAt) {
		return invalidInput("endsAt must be after startsAt")
	}
	return nil
}

// checkOverlap fails with ErrTermOverlap when another scheduled term intersects [start, end).
// Callers hold scheduleKey.
func (s *termService) checkOverlap(ctx context.Context, start, end time.Time, excludeID *primitive.ObjectID) error {
	overlap, err := s.termRepo.HasOverlap(ctx, start, end, excludeID)
	if err != nil {
		return internalError(err)
	}
	if overlap {
		return ErrTermOverlap
	}
	return nil
}

func (s *termService) Create(ctx context.Context, p domain.Principal, in TermInput) (*domain.Term, error) {
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if in.Capacity < 1 {
		return nil, invalidInput("invalid capacity")
	}
	if err := validateRange(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	trainerID := p.ID
	if p.IsAdmin() && in.TrainerID != nil && !in.TrainerID.IsZero() {
		trainerID = *in.TrainerID
	}

	unlock := s.locks.Lock(scheduleKey)
	defer unlock()

	now := s.clock.Now()
	status := domain.InitialStatus(in.StartsAt, now)
	if status == domain.TermScheduled {
		if err := s.checkOverlap(ctx, in.StartsAt, in.EndsAt, nil); err != nil {
			return nil, err
		}
	}

	term := &domain.Term{
		Capacity:           in.Capacity,
		StartsAt:           in.StartsAt.UTC(),
		EndsAt:             in.EndsAt.UTC(),
		Status:             status,
		TrainerID:          trainerID,
		WorkoutDescription: strings.TrimSpace(in.WorkoutDescription),
		CreatedBy:          p.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := s.termRepo.Create(ctx, term); err != nil {
		return nil, internalError(err)
	}

	log.Printf("INFO: Term %s created by %s (%s, %s - %s)", term.ID.Hex(), p.ID.Hex(), term.Status,
		term.StartsAt.Format(time.RFC3339), term.EndsAt.Format(time.RFC3339))
	return term, nil
}

func (s *termService) Edit(ctx context.Context, p domain.Principal, termID primitive.ObjectID, patch TermPatch) (*domain.Term, error) {
	moving := patch.StartsAt != nil || patch.EndsAt != nil
	var unlock func()
	if moving {
		// A move can change which week the members' bookings count against.
		u, err := s.lockTermWithMembers(ctx, termID)
		if err != nil {
			return nil, err
		}
		unlock = u
	} else {
		unlock = s.locks.Lock(termKey(termID))
	}
	defer unlock()

	term, err := s.loadManagedTerm(ctx, p, termID)
	if err != nil {
		return nil, err
	}
	if patch.TrainerID != nil && !p.IsAdmin() {
		return nil, ErrForbidden.withMessage("only admin can change trainerId")
	}
	expected := term.Status

	if patch.Capacity != nil {
		if *patch.Capacity < 1 {
			return nil, invalidInput("invalid capacity")
		}
		booked, err := s.bookingRepo.CountActiveByTerm(ctx, termID)
		if err != nil {
			return nil, internalError(err)
		}
		if int64(*patch.Capacity) < booked {
			return nil, ErrCapacityBelowBooked.withMessage("capacity %d is below the %d active bookings", *patch.Capacity, booked)
		}
		term.Capacity = *patch.Capacity
	}
	if patch.WorkoutDescription != nil {
		term.WorkoutDescription = strings.TrimSpace(*patch.WorkoutDescription)
	}
	if patch.TrainerID != nil {
		if patch.TrainerID.IsZero() {
			return nil, invalidInput("invalid trainerId")
		}
		term.TrainerID = *patch.TrainerID
	}

	if moving {
		newStart, newEnd := term.StartsAt, term.EndsAt
		if patch.StartsAt != nil {
			newStart = patch.StartsAt.UTC()
		}
		if patch.EndsAt != nil {
			newEnd = patch.EndsAt.UTC()
		}
		if err := validateRange(newStart, newEnd); err != nil {
			return nil, err
		}

		unlockSchedule := s.locks.Lock(scheduleKey)
		defer unlockSchedule()

		// A term whose start has passed is finished for good. Cancelled terms stay cancelled.
		if term.Status == domain.TermScheduled && domain.InitialStatus(newStart, s.clock.Now()) == domain.TermFinished {
			term.Status = domain.TermFinished
		}
		if term.Status == domain.TermScheduled {
			if err := s.checkOverlap(ctx, newStart, newEnd, &term.ID); err != nil {
				return nil, err
			}
		}
		oldWeek, _ := domain.WeekRange(term.StartsAt, s.policy.Location)
		newWeek, newWeekEnd := domain.WeekRange(newStart, s.policy.Location)
		if !oldWeek.Equal(newWeek) {
			if err := s.checkMembersWeeklyLimit(ctx, term.ID, newWeek, newWeekEnd); err != nil {
				return nil, err
			}
		}
		term.StartsAt, term.EndsAt = newStart, newEnd
	}

	term.UpdatedAt = s.clock.Now()
	if err := s.termRepo.Update(ctx, term, expected); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrTermNotFound
		case errors.Is(err, repository.ErrUpdateFailed):
			return nil, ErrConcurrentUpdate
		}
		return nil, internalError(err)
	}

	log.Printf("INFO: Term %s edited by %s", termID.Hex(), p.ID.Hex())
	return term, nil
}

func (s *termService) Delete(ctx context.Context, p domain.Principal, termID primitive.ObjectID) error {
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	if _, err := s.loadManagedTerm(ctx, p, termID); err != nil {
		return err
	}

	removed, err := s.bookingRepo.DeleteByTerms(ctx, []primitive.ObjectID{termID})
	if err != nil {
		return internalError(err)
	}
	if err := s.termRepo.Delete(ctx, termID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTermNotFound
		}
		return internalError(err)
	}

	log.Printf("INFO: Term %s deleted by %s together with %d bookings", termID.Hex(), p.ID.Hex(), removed)
	return nil
}

func (s *termService) Cancel(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Term, int64, error) {
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	term, err := s.loadManagedTerm(ctx, p, termID)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	if err := finishIfDue(ctx, s.termRepo, term, now); err != nil {
		return nil, 0, internalError(err)
	}

	// A cancelled term goes through the booking flip again so a cancel that failed halfway
	// can be completed by repeating it.
	resumed := term.Status == domain.TermCancelled
	if !resumed {
		if !term.Status.CanTransition(domain.TermCancelled) {
			return nil, 0, ErrTermNotScheduled.withMessage("cannot cancel a %s term", term.Status)
		}
		if err := transitionTerm(ctx, s.termRepo, term, domain.TermCancelled, now); err != nil {
			if errors.Is(err, repository.ErrUpdateFailed) {
				return nil, 0, ErrConcurrentUpdate
			}
			return nil, 0, internalError(err)
		}
	}

	affected, err := s.bookingRepo.CancelActiveByTerm(ctx, termID, domain.BookingTermCancelled, now)
	if err != nil {
		log.Printf("ERROR: Term %s is cancelled but its active bookings were not released (repeat the cancel): %v", termID.Hex(), err)
		return nil, 0, internalError(err)
	}
	if resumed {
		if affected == 0 {
			return nil, 0, ErrTermNotScheduled.withMessage("cannot cancel a %s term", term.Status)
		}
		log.Printf("WARN: Term %s cancel resumed by %s, %d leftover bookings term-cancelled", termID.Hex(), p.ID.Hex(), affected)
		return term, affected, nil
	}

	log.Printf("INFO: Term %s cancelled by %s, %d bookings term-cancelled", termID.Hex(), p.ID.Hex(), affected)
	return term, affected, nil
}

func (s *termService) List(ctx context.Context) ([]TermDetails, error) {
	if _, err := s.lifecycle.MaterializeDueTransitions(ctx); err != nil {
		return nil, err
	}

	terms, err := s.termRepo.ListScheduledAfter(ctx, s.clock.Now())
	if err != nil {
		return nil, internalError(err)
	}
	return s.withDetails(ctx, terms)
}

func (s *termService) Get(ctx context.Context, termID primitive.ObjectID) (*TermDetails, error) {
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if err := finishIfDue(ctx, s.termRepo, term, s.clock.Now()); err != nil {
		return nil, internalError(err)
	}
	details, err := s.withDetails(ctx, []domain.Term{*term})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// --- Helpers ---

// moveLockAttempts bounds how often lockTermWithMembers starts over while members keep joining.
const moveLockAttempts = 3

// lockTermWithMembers takes the user key of every active member, then the term key, in the
// same user-before-term order as the booking paths. The roster is read again under the term
// lock; a member who joined in between makes it start over.
func (s *termService) lockTermWithMembers(ctx context.Context, termID primitive.ObjectID) (func(), error) {
	for attempt := 0; attempt < moveLockAttempts; attempt++ {
		members, err := s.activeMembers(ctx, termID)
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(members))
		for i, id := range members {
			keys[i] = userKey(id)
		}
		unlockUsers := s.locks.LockAll(keys...)
		unlockTerm := s.locks.Lock(termKey(termID))
		unlock := func() {
			unlockTerm()
			unlockUsers()
		}

		current, err := s.activeMembers(ctx, termID)
		if err != nil {
			unlock()
			return nil, err
		}
		if containsAll(members, current) {
			return unlock, nil
		}
		unlock()
	}
	log.Printf("WARN: Gave up locking the roster of term %s after %d attempts", termID.Hex(), moveLockAttempts)
	return nil, ErrConcurrentUpdate
}

func (s *termService) activeMembers(ctx context.Context, termID primitive.ObjectID) ([]primitive.ObjectID, error) {
	bookings, err := s.bookingRepo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, internalError(err)
	}
	out := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == domain.BookingActive {
			out = append(out, b.UserID)
		}
	}
	return out, nil
}

func containsAll(set, ids []primitive.ObjectID) bool {
	seen := make(map[primitive.ObjectID]struct{}, len(set))
	for _, id := range set {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

// checkMembersWeeklyLimit rejects moving a term into the week [from, to) when one of its
// members already holds the weekly limit of active bookings there.
func (s *termService) checkMembersWeeklyLimit(ctx context.Context, termID primitive.ObjectID, from, to time.Time) error {
	members, err := s.activeMembers(ctx, termID)
	if err != nil {
		return err
	}
	for _, userID := range members {
		n, err := s.bookingRepo.CountActiveForUserInRange(ctx, userID, from, to, &termID)
		if err != nil {
			return internalError(err)
		}
		if n >= int64(s.policy.WeeklyLimit) {
			return ErrWeeklyLimitOnMove.withMessage("member %s already has %d bookings in the week of %s (limit %d)",
				userID.Hex(), n, from.Format("2006-01-02"), s.policy.WeeklyLimit)
		}
	}
	return nil
}

func (s *termService) loadTerm(ctx context.Context, termID primitive.ObjectID) (*domain.Term, error) {
	term, err := s.termRepo.GetByID(ctx, termID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTermNotFound
		}
		return nil, internalError(err)
	}
	return term, nil
}

func (s *termService) loadManagedTerm(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Term, error) {
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(term.TrainerID) {
		return nil, ErrForbidden
	}
	return term, nil
}

func (s *termService) withDetails(ctx context.Context, terms []domain.Term) ([]TermDetails, error) {
	out := make([]TermDetails, 0, len(terms))
	if len(terms) == 0 {
		return out, nil
	}

	ids := make([]primitive.ObjectID, len(terms))
	trainerIDs := make([]primitive.ObjectID, len(terms))
	for i := range terms {
		ids[i] = terms[i].ID
		trainerIDs[i] = terms[i].TrainerID
	}
	counts, err := s.bookingRepo.CountActiveByTerms(ctx, ids)
	if err != nil {
		return nil, internalError(err)
	}
	trainers, err := lookupUsers(ctx, s.userRepo, trainerIDs)
	if err != nil {
		return nil, err
	}

	for _, t := range terms {
		out = append(out, TermDetails{Term: t, BookedCount: counts[t.ID], TrainerName: trainers[t.TrainerID].name})
	}
	return out, nil
}
