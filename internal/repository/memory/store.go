// Package memory provides in-process implementations of the repository interfaces.
// It is the dev fallback when no MongoDB is configured and the backend used by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type bookingKey struct {
	termID primitive.ObjectID
	userID primitive.ObjectID
}

// Store holds users, terms and bookings behind a single mutex so cross-collection
// reads (the weekly count joins bookings to terms) see one consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	users    map[primitive.ObjectID]domain.User
	terms    map[primitive.ObjectID]domain.Term
	bookings map[primitive.ObjectID]domain.Booking
	pairs    map[bookingKey]primitive.ObjectID
	// seq breaks createdAt ties so "newest first" is stable.
	seq   int64
	order map[primitive.ObjectID]int64
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:    make(map[primitive.ObjectID]domain.User),
		terms:    make(map[primitive.ObjectID]domain.Term),
		bookings: make(map[primitive.ObjectID]domain.Booking),
		pairs:    make(map[bookingKey]primitive.ObjectID),
		order:    make(map[primitive.ObjectID]int64),
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Terms returns the term repository view of the store.
func (s *Store) Terms() repository.TermRepository { return &termRepo{s} }

// Bookings returns the booking repository view of the store.
func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s} }

func (s *Store) stamp(id primitive.ObjectID) {
	s.seq++
	s.order[id] = s.seq
}

func stampTimes(created *time.Time, updated *time.Time) {
	if created.IsZero() {
		*created = time.Now().UTC()
	}
	*updated = *created
}

func copyBooking(b domain.Booking) domain.Booking {
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		b.CancelledAt = &at
	}
	return b
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]struct{} {
	set := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ===================== Users =====================

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	stampTimes(&user.CreatedAt, &user.UpdatedAt)
	r.s.users[user.ID] = *user
	r.s.stamp(user.ID)
	return user.ID, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.User{}
	for id := range idSet(ids) {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *userRepo) List(ctx context.Context) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] > r.s.order[out[j].ID] })
	return out, nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id primitive.ObjectID, role domain.Role) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = u
	return &u, nil
}

// ===================== Terms =====================

type termRepo struct{ s *Store }

func (r *termRepo) insertLocked(term *domain.Term) {
	term.ID = primitive.NewObjectID()
	stampTimes(&term.CreatedAt, &term.UpdatedAt)
	if term.Status == "" {
		term.Status = domain.TermScheduled
	}
	r.s.terms[term.ID] = *term
	r.s.stamp(term.ID)
}

func (r *termRepo) Create(ctx context.Context, term *domain.Term) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.insertLocked(term)
	return term.ID, nil
}

func (r *termRepo) CreateMany(ctx context.Context, terms []*domain.Term) ([]primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]primitive.ObjectID, len(terms))
	for i, t := range terms {
		r.insertLocked(t)
		ids[i] = t.ID
	}
	return ids, nil
}

func (r *termRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Term, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.terms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *termRepo) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Term, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Term{}
	for id := range idSet(ids) {
		if t, ok := r.s.terms[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *termRepo) Update(ctx context.Context, term *domain.Term, expected domain.TermStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.terms[term.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrUpdateFailed
	}
	term.CreatedAt = stored.CreatedAt
	term.CreatedBy = stored.CreatedBy
	if term.UpdatedAt.IsZero() {
		term.UpdatedAt = time.Now().UTC()
	}
	r.s.terms[term.ID] = *term
	return nil
}

func (r *termRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.TermStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.terms[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Status != from {
		return repository.ErrUpdateFailed
	}
	t.Status = to
	t.UpdatedAt = at.UTC()
	r.s.terms[id] = t
	return nil
}

func (r *termRepo) HasOverlap(ctx context.Context, start, end time.Time, excludeID *primitive.ObjectID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, t := range r.s.terms {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if t.Status == domain.TermScheduled && domain.Overlaps(start, end, t.StartsAt, t.EndsAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *termRepo) FinishDue(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.terms {
		if t.IsDue(now) {
			t.Status = domain.TermFinished
			t.UpdatedAt = now.UTC()
			r.s.terms[id] = t
			n++
		}
	}
	return n, nil
}

func (r *termRepo) ListScheduledAfter(ctx context.Context, now time.Time) ([]domain.Term, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Term{}
	for _, t := range r.s.terms {
		if t.Status == domain.TermScheduled && t.StartsAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *termRepo) ListFinishedEndedBefore(ctx context.Context, cutoff time.Time) ([]domain.Term, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Term{}
	for _, t := range r.s.terms {
		if t.Status == domain.TermFinished && t.EndsAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *termRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.terms[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.terms, id)
	delete(r.s.order, id)
	return nil
}

func (r *termRepo) DeleteFinished(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id := range idSet(ids) {
		if t, ok := r.s.terms[id]; ok && t.Status == domain.TermFinished {
			delete(r.s.terms, id)
			delete(r.s.order, id)
			n++
		}
	}
	return n, nil
}

// ===================== Bookings =====================

type bookingRepo struct{ s *Store }

func (r *bookingRepo) Create(ctx context.Context, booking *domain.Booking) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := bookingKey{termID: booking.TermID, userID: booking.UserID}
	if _, exists := r.s.pairs[key]; exists {
		return primitive.NilObjectID, repository.ErrDuplicate
	}
	booking.ID = primitive.NewObjectID()
	stampTimes(&booking.CreatedAt, &booking.UpdatedAt)
	if booking.Status == "" {
		booking.Status = domain.BookingActive
	}
	r.s.bookings[booking.ID] = copyBooking(*booking)
	r.s.pairs[key] = booking.ID
	r.s.stamp(booking.ID)
	return booking.ID, nil
}

func (r *bookingRepo) GetByTermAndUser(ctx context.Context, termID, userID primitive.ObjectID) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.pairs[bookingKey{termID: termID, userID: userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b := copyBooking(r.s.bookings[id])
	return &b, nil
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = time.Now().UTC()
	}
	stored.Status = booking.Status
	stored.CancelledAt = booking.CancelledAt
	stored.UpdatedAt = booking.UpdatedAt
	r.s.bookings[booking.ID] = copyBooking(stored)
	return nil
}

func (r *bookingRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.deleteLocked(b)
	return nil
}

func (r *bookingRepo) deleteLocked(b domain.Booking) {
	delete(r.s.bookings, b.ID)
	delete(r.s.pairs, bookingKey{termID: b.TermID, userID: b.UserID})
	delete(r.s.order, b.ID)
}

func (r *bookingRepo) CountActiveByTerm(ctx context.Context, termID primitive.ObjectID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, b := range r.s.bookings {
		if b.TermID == termID && b.Status == domain.BookingActive {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepo) CountActiveByTerms(ctx context.Context, termIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	want := idSet(termIDs)
	counts := make(map[primitive.ObjectID]int64, len(want))
	for _, b := range r.s.bookings {
		if _, ok := want[b.TermID]; ok && b.Status == domain.BookingActive {
			counts[b.TermID]++
		}
	}
	return counts, nil
}

func (r *bookingRepo) CountActiveForUserInRange(ctx context.Context, userID primitive.ObjectID, from, to time.Time, excludeTermID *primitive.ObjectID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, b := range r.s.bookings {
		if b.UserID != userID || b.Status != domain.BookingActive {
			continue
		}
		if excludeTermID != nil && b.TermID == *excludeTermID {
			continue
		}
		t, ok := r.s.terms[b.TermID]
		if !ok {
			continue
		}
		if !t.StartsAt.Before(from) && t.StartsAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepo) collect(match func(domain.Booking) bool) []domain.Booking {
	out := []domain.Booking{}
	for _, b := range r.s.bookings {
		if match(b) {
			out = append(out, copyBooking(b))
		}
	}
	return out
}

func (r *bookingRepo) ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.collect(func(b domain.Booking) bool {
		return b.UserID == userID && b.Status == domain.BookingActive
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.s.order[out[i].ID] > r.s.order[out[j].ID]
	})
	return out, nil
}

func (r *bookingRepo) ListByTerm(ctx context.Context, termID primitive.ObjectID) ([]domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.collect(func(b domain.Booking) bool { return b.TermID == termID })
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *bookingRepo) ListByTerms(ctx context.Context, termIDs []primitive.ObjectID) ([]domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	want := idSet(termIDs)
	return r.collect(func(b domain.Booking) bool {
		_, ok := want[b.TermID]
		return ok
	}), nil
}

func (r *bookingRepo) CancelActiveByTerm(ctx context.Context, termID primitive.ObjectID, status domain.BookingStatus, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, b := range r.s.bookings {
		if b.TermID == termID && b.Status == domain.BookingActive {
			b.Deactivate(status, at)
			b.UpdatedAt = at
			r.s.bookings[id] = b
			n++
		}
	}
	return n, nil
}

func (r *bookingRepo) DeleteByTerms(ctx context.Context, termIDs []primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := idSet(termIDs)
	var n int64
	for _, b := range r.s.bookings {
		if _, ok := want[b.TermID]; ok {
			r.deleteLocked(b)
			n++
		}
	}
	return n, nil
}
