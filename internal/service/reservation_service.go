package service

import (
	"context"
	"errors"
	"log"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingDetails is an active booking joined with its term and the trainer's name.
type BookingDetails struct {
	Booking     domain.Booking
	Term        domain.Term
	TrainerName string
}

// RosterEntry is one booking on a term as seen by staff.
type RosterEntry struct {
	Booking     domain.Booking
	MemberName  string
	MemberEmail string
}

// ReservationService is the join/cancel/reactivate protocol for bookings.
type ReservationService interface {
	// Join books the caller onto a term. created is false when a cancelled booking was reactivated.
	Join(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (booking *domain.Booking, created bool, err error)
	CancelByTerm(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Booking, error)
	ListMine(ctx context.Context, p domain.Principal) ([]BookingDetails, error)

	// Staff operations on a member's booking.
	RemoveMember(ctx context.Context, p domain.Principal, termID, userID primitive.ObjectID) (*domain.Booking, error)
	RestoreMember(ctx context.Context, p domain.Principal, termID, userID primitive.ObjectID) (*domain.Booking, error)
	ListTermBookings(ctx context.Context, p domain.Principal, termID primitive.ObjectID) ([]RosterEntry, error)
}

type reservationService struct {
	termRepo    repository.TermRepository
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
	lifecycle   LifecycleService
	locks       *KeyedLocker
	clock       Clock
	policy      Policy
}

// NewReservationService wires the engine. locks is shared with the term service.
func NewReservationService(
	termRepo repository.TermRepository,
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	lifecycle LifecycleService,
	locks *KeyedLocker,
	clock Clock,
	policy Policy,
) ReservationService {
	if clock == nil {
		clock = SystemClock{}
	}
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &reservationService{
		termRepo:    termRepo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		lifecycle:   lifecycle,
		locks:       locks,
		clock:       clock,
		policy:      policy.withDefaults(),
	}
}

func (s *reservationService) Join(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Booking, bool, error) {
	unlockUser := s.locks.Lock(userKey(p.ID))
	defer unlockUser()
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	term, err := s.loadJoinableTerm(ctx, termID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.findBooking(ctx, termID, p.ID)
	if err != nil {
		return nil, false, err
	}

	if err := s.checkLimits(ctx, term, p.ID, existing != nil); err != nil {
		return nil, false, err
	}

	if existing != nil {
		switch existing.Status {
		case domain.BookingActive:
			return nil, false, ErrAlreadyBooked
		case domain.BookingTermCancelled:
			return nil, false, ErrAwaitingReactivation
		}
		booking, err := s.reactivate(ctx, term, existing)
		if err != nil {
			return nil, false, err
		}
		log.Printf("INFO: User %s rejoined term %s (booking %s)", p.ID.Hex(), termID.Hex(), booking.ID.Hex())
		return booking, false, nil
	}

	now := s.clock.Now()
	booking := &domain.Booking{
		TermID:    termID,
		UserID:    p.ID,
		Status:    domain.BookingActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.bookingRepo.Create(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, ErrAlreadyBooked
		}
		return nil, false, internalError(err)
	}

	if err := s.verifyActive(ctx, term, p.ID); err != nil {
		if rbErr := s.bookingRepo.Delete(ctx, booking.ID); rbErr != nil {
			log.Printf("ERROR: Failed to roll back booking %s after %v: %v", booking.ID.Hex(), err, rbErr)
			return nil, false, internalError(rbErr)
		}
		return nil, false, err
	}

	log.Printf("INFO: User %s joined term %s (booking %s)", p.ID.Hex(), termID.Hex(), booking.ID.Hex())
	return booking, true, nil
}

func (s *reservationService) CancelByTerm(ctx context.Context, p domain.Principal, termID primitive.ObjectID) (*domain.Booking, error) {
	unlockUser := s.locks.Lock(userKey(p.ID))
	defer unlockUser()
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if err := finishIfDue(ctx, s.termRepo, term, s.clock.Now()); err != nil {
		return nil, internalError(err)
	}
	if term.Status != domain.TermScheduled {
		return nil, ErrTermNotScheduled.withMessage("cannot cancel a booking on a %s term", term.Status)
	}

	booking, err := s.findBooking(ctx, termID, p.ID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.Status != domain.BookingActive {
		return nil, ErrBookingNotFound
	}

	booking.Deactivate(domain.BookingCancelled, s.clock.Now())
	if err := s.bookingRepo.UpdateStatus(ctx, booking); err != nil {
		return nil, internalError(err)
	}

	log.Printf("INFO: User %s cancelled booking %s on term %s", p.ID.Hex(), booking.ID.Hex(), termID.Hex())
	return booking, nil
}

func (s *reservationService) ListMine(ctx context.Context, p domain.Principal) ([]BookingDetails, error) {
	if _, err := s.lifecycle.MaterializeDueTransitions(ctx); err != nil {
		return nil, err
	}

	bookings, err := s.bookingRepo.ListActiveByUser(ctx, p.ID)
	if err != nil {
		return nil, internalError(err)
	}
	if len(bookings) == 0 {
		return []BookingDetails{}, nil
	}

	termIDs := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		termIDs = append(termIDs, b.TermID)
	}
	terms, err := s.termRepo.GetByIDs(ctx, termIDs)
	if err != nil {
		return nil, internalError(err)
	}
	termsByID := make(map[primitive.ObjectID]domain.Term, len(terms))
	trainerIDs := make([]primitive.ObjectID, 0, len(terms))
	for _, t := range terms {
		termsByID[t.ID] = t
		trainerIDs = append(trainerIDs, t.TrainerID)
	}
	names, err := lookupUsers(ctx, s.userRepo, trainerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]BookingDetails, 0, len(bookings))
	for _, b := range bookings {
		t, ok := termsByID[b.TermID]
		if !ok || t.Status != domain.TermScheduled {
			continue
		}
		out = append(out, BookingDetails{Booking: b, Term: t, TrainerName: names[t.TrainerID].name})
	}
	return out, nil
}

func (s *reservationService) RemoveMember(ctx context.Context, p domain.Principal, termID, userID primitive.ObjectID) (*domain.Booking, error) {
	unlockUser := s.locks.Lock(userKey(userID))
	defer unlockUser()
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(term.TrainerID) {
		return nil, ErrForbidden
	}
	if err := finishIfDue(ctx, s.termRepo, term, s.clock.Now()); err != nil {
		return nil, internalError(err)
	}
	if term.Status != domain.TermScheduled {
		return nil, ErrTermNotScheduled.withMessage("cannot remove a member from a %s term", term.Status)
	}

	booking, err := s.findBooking(ctx, termID, userID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.Status != domain.BookingActive {
		return nil, ErrBookingNotFound
	}

	booking.Deactivate(domain.BookingTermCancelled, s.clock.Now())
	if err := s.bookingRepo.UpdateStatus(ctx, booking); err != nil {
		return nil, internalError(err)
	}

	log.Printf("INFO: %s removed user %s from term %s", p.ID.Hex(), userID.Hex(), termID.Hex())
	return booking, nil
}

func (s *reservationService) RestoreMember(ctx context.Context, p domain.Principal, termID, userID primitive.ObjectID) (*domain.Booking, error) {
	unlockUser := s.locks.Lock(userKey(userID))
	defer unlockUser()
	unlockTerm := s.locks.Lock(termKey(termID))
	defer unlockTerm()

	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(term.TrainerID) {
		return nil, ErrForbidden
	}
	if err := s.requireJoinable(ctx, term); err != nil {
		return nil, err
	}

	booking, err := s.findBooking(ctx, termID, userID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound.withMessage("booking not found")
	}
	if booking.Status != domain.BookingTermCancelled {
		return nil, ErrBookingNotRestorable
	}

	if err := s.checkLimits(ctx, term, userID, true); err != nil {
		return nil, err
	}
	booking, err = s.reactivate(ctx, term, booking)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: %s restored user %s on term %s", p.ID.Hex(), userID.Hex(), termID.Hex())
	return booking, nil
}

func (s *reservationService) ListTermBookings(ctx context.Context, p domain.Principal, termID primitive.ObjectID) ([]RosterEntry, error) {
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(term.TrainerID) {
		return nil, ErrForbidden
	}

	bookings, err := s.bookingRepo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, internalError(err)
	}
	userIDs := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		userIDs = append(userIDs, b.UserID)
	}
	members, err := lookupUsers(ctx, s.userRepo, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]RosterEntry, 0, len(bookings))
	for _, b := range bookings {
		m := members[b.UserID]
		out = append(out, RosterEntry{Booking: b, MemberName: m.name, MemberEmail: m.email})
	}
	return out, nil
}

// --- Helpers ---

func (s *reservationService) loadTerm(ctx context.Context, termID primitive.ObjectID) (*domain.Term, error) {
	term, err := s.termRepo.GetByID(ctx, termID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTermNotFound
		}
		return nil, internalError(err)
	}
	return term, nil
}

func (s *reservationService) loadJoinableTerm(ctx context.Context, termID primitive.ObjectID) (*domain.Term, error) {
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if err := s.requireJoinable(ctx, term); err != nil {
		return nil, err
	}
	return term, nil
}

// requireJoinable materializes a due term and rejects anything not scheduled.
func (s *reservationService) requireJoinable(ctx context.Context, term *domain.Term) error {
	if err := finishIfDue(ctx, s.termRepo, term, s.clock.Now()); err != nil {
		return internalError(err)
	}
	if term.Status != domain.TermScheduled {
		return ErrTermNotJoinable.withMessage("term not joinable (%s)", term.Status)
	}
	return nil
}

func (s *reservationService) findBooking(ctx context.Context, termID, userID primitive.ObjectID) (*domain.Booking, error) {
	booking, err := s.bookingRepo.GetByTermAndUser(ctx, termID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, internalError(err)
	}
	return booking, nil
}

// checkLimits applies the capacity check and then the weekly quota. When the user already has
// a booking on this term it is left out of the weekly count.
func (s *reservationService) checkLimits(ctx context.Context, term *domain.Term, userID primitive.ObjectID, hasBooking bool) error {
	count, err := s.bookingRepo.CountActiveByTerm(ctx, term.ID)
	if err != nil {
		return internalError(err)
	}
	if count >= int64(term.Capacity) {
		return ErrTermFull
	}

	var exclude *primitive.ObjectID
	if hasBooking {
		id := term.ID
		exclude = &id
	}
	weekly, err := s.weeklyCount(ctx, term, userID, exclude)
	if err != nil {
		return err
	}
	if weekly >= int64(s.policy.WeeklyLimit) {
		return ErrWeeklyLimit.withMessage("weekly limit reached (%d)", s.policy.WeeklyLimit)
	}
	return nil
}

func (s *reservationService) weeklyCount(ctx context.Context, term *domain.Term, userID primitive.ObjectID, exclude *primitive.ObjectID) (int64, error) {
	from, to := domain.WeekRange(term.StartsAt, s.policy.Location)
	n, err := s.bookingRepo.CountActiveForUserInRange(ctx, userID, from, to, exclude)
	if err != nil {
		return 0, internalError(err)
	}
	return n, nil
}

// reactivate flips a non-active booking back to active, undoing the change if the
// post-write check finds a limit exceeded.
func (s *reservationService) reactivate(ctx context.Context, term *domain.Term, booking *domain.Booking) (*domain.Booking, error) {
	prevStatus, prevCancelledAt := booking.Status, booking.CancelledAt

	booking.Activate(s.clock.Now())
	if err := s.bookingRepo.UpdateStatus(ctx, booking); err != nil {
		return nil, internalError(err)
	}

	if err := s.verifyActive(ctx, term, booking.UserID); err != nil {
		booking.Status, booking.CancelledAt = prevStatus, prevCancelledAt
		if rbErr := s.bookingRepo.UpdateStatus(ctx, booking); rbErr != nil {
			log.Printf("ERROR: Failed to roll back booking %s after %v: %v", booking.ID.Hex(), err, rbErr)
			return nil, internalError(rbErr)
		}
		return nil, err
	}
	return booking, nil
}

// verifyActive re-reads state after a booking entered active. The keyed locks serialize one
// process; this catches writes from other replicas sharing the same database.
func (s *reservationService) verifyActive(ctx context.Context, term *domain.Term, userID primitive.ObjectID) error {
	current, err := s.loadTerm(ctx, term.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.TermScheduled {
		return ErrTermNotJoinable.withMessage("term not joinable (%s)", current.Status)
	}

	count, err := s.bookingRepo.CountActiveByTerm(ctx, term.ID)
	if err != nil {
		return internalError(err)
	}
	if count > int64(current.Capacity) {
		log.Printf("WARN: Term %s over capacity after concurrent join, rolling back", term.ID.Hex())
		return ErrTermFull
	}

	weekly, err := s.weeklyCount(ctx, current, userID, nil)
	if err != nil {
		return err
	}
	if weekly > int64(s.policy.WeeklyLimit) {
		log.Printf("WARN: User %s over weekly limit after concurrent join, rolling back", userID.Hex())
		return ErrWeeklyLimit.withMessage("weekly limit reached (%d)", s.policy.WeeklyLimit)
	}
	return nil
}

type userLabel struct {
	name  string
	email string
}

// lookupUsers batch-loads display names for the given ids. Unknown ids are simply absent.
func lookupUsers(ctx context.Context, userRepo repository.UserRepository, ids []primitive.ObjectID) (map[primitive.ObjectID]userLabel, error) {
	out := make(map[primitive.ObjectID]userLabel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := userRepo.GetByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, internalError(err)
	}
	for i := range users {
		out[users[i].ID] = userLabel{name: users[i].DisplayName(), email: users[i].Email}
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

