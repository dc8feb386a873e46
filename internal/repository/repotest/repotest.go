// Package repotest holds behaviour checks that every repository backend must pass.
// The memory store and the MongoDB repositories run the same cases from their own tests.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repos is the backend under test. Each check expects it to start empty.
type Repos struct {
	Terms    repository.TermRepository
	Bookings repository.BookingRepository
}

func newTerm(t *testing.T, terms repository.TermRepository, start time.Time, status domain.TermStatus) *domain.Term {
	t.Helper()
	owner := primitive.NewObjectID()
	term := &domain.Term{
		Capacity:  10,
		StartsAt:  start.UTC(),
		EndsAt:    start.Add(time.Hour).UTC(),
		Status:    status,
		TrainerID: owner,
		CreatedBy: owner,
	}
	if _, err := terms.Create(context.Background(), term); err != nil {
		t.Fatalf("create term at %s: %v", start, err)
	}
	return term
}

func book(t *testing.T, bookings repository.BookingRepository, termID, userID primitive.ObjectID, status domain.BookingStatus) *domain.Booking {
	t.Helper()
	b := &domain.Booking{TermID: termID, UserID: userID, Status: status}
	if status != domain.BookingActive {
		at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		b.CancelledAt = &at
	}
	if _, err := bookings.Create(context.Background(), b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func loadZagreb(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zagreb")
	if err != nil {
		t.Skipf("tzdata for Europe/Zagreb not available: %v", err)
	}
	return loc
}

// WeeklyCount checks CountActiveForUserInRange on the edges of studio weeks in Europe/Zagreb,
// including the week in which summer time ends.
func WeeklyCount(t *testing.T, r Repos) {
	ctx := context.Background()
	zagreb := loadZagreb(t)
	user, other := primitive.NewObjectID(), primitive.NewObjectID()

	sundayBefore := newTerm(t, r.Terms, time.Date(2026, 10, 18, 23, 59, 0, 0, zagreb), domain.TermScheduled)
	mondayStart := newTerm(t, r.Terms, time.Date(2026, 10, 19, 0, 0, 0, 0, zagreb), domain.TermScheduled)
	sundayLast := newTerm(t, r.Terms, time.Date(2026, 10, 25, 23, 59, 0, 0, zagreb), domain.TermScheduled)
	mondayNext := newTerm(t, r.Terms, time.Date(2026, 10, 26, 0, 0, 0, 0, zagreb), domain.TermScheduled)
	midweek := newTerm(t, r.Terms, time.Date(2026, 10, 21, 10, 0, 0, 0, zagreb), domain.TermScheduled)

	for _, term := range []*domain.Term{sundayBefore, mondayStart, sundayLast, mondayNext} {
		book(t, r.Bookings, term.ID, user, domain.BookingActive)
	}
	book(t, r.Bookings, midweek.ID, user, domain.BookingCancelled)
	book(t, r.Bookings, mondayStart.ID, other, domain.BookingActive)

	weekFrom, weekTo := domain.WeekRange(mondayStart.StartsAt, zagreb)
	prevFrom, prevTo := domain.WeekRange(sundayBefore.StartsAt, zagreb)
	nextFrom, nextTo := domain.WeekRange(mondayNext.StartsAt, zagreb)

	tests := []struct {
		name     string
		from, to time.Time
		exclude  *primitive.ObjectID
		want     int64
	}{
		{"monday 00:00 through sunday 23:59", weekFrom, weekTo, nil, 2},
		{"excluding the monday term", weekFrom, weekTo, &mondayStart.ID, 1},
		{"excluding a term outside the week", weekFrom, weekTo, &mondayNext.ID, 2},
		{"previous week ends at sunday 23:59", prevFrom, prevTo, nil, 1},
		{"next week starts at monday 00:00", nextFrom, nextTo, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Bookings.CountActiveForUserInRange(ctx, user, tt.from, tt.to, tt.exclude)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tt.want {
				t.Fatalf("count in [%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TermQueries checks the overlap test, the due sweep, the retention delete and the
// conditional writes of a TermRepository.
func TermQueries(t *testing.T, r Repos) {
	ctx := context.Background()
	day := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	t.Run("HasOverlap", func(t *testing.T) {
		scheduled := newTerm(t, r.Terms, at(10), domain.TermScheduled) // 10:00-11:00
		newTerm(t, r.Terms, at(14), domain.TermCancelled)
		newTerm(t, r.Terms, at(16), domain.TermFinished)

		tests := []struct {
			name       string
			start, end time.Time
			exclude    *primitive.ObjectID
			want       bool
		}{
			{"inside", at(10).Add(15 * time.Minute), at(10).Add(45 * time.Minute), nil, true},
			{"covering", at(9), at(12), nil, true},
			{"touching end", at(11), at(12), nil, false},
			{"touching start", at(9), at(10), nil, false},
			{"itself excluded", at(10), at(11), &scheduled.ID, false},
			{"over a cancelled term", at(14), at(15), nil, false},
			{"over a finished term", at(16), at(17), nil, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := r.Terms.HasOverlap(ctx, tt.start, tt.end, tt.exclude)
				if err != nil {
					t.Fatalf("overlap: %v", err)
				}
				if got != tt.want {
					t.Fatalf("overlap = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("FinishDue and DeleteFinished", func(t *testing.T) {
		// The day before the overlap terms, so the sweep leaves those alone.
		now := at(-18)
		past := newTerm(t, r.Terms, now.Add(-2*time.Hour), domain.TermScheduled)
		startingNow := newTerm(t, r.Terms, now, domain.TermScheduled)
		upcoming := newTerm(t, r.Terms, now.Add(time.Minute), domain.TermScheduled)
		cancelled := newTerm(t, r.Terms, now.Add(-4*time.Hour), domain.TermCancelled)

		n, err := r.Terms.FinishDue(ctx, now)
		if err != nil {
			t.Fatalf("finish due: %v", err)
		}
		if n != 2 {
			t.Fatalf("finished %d terms, want 2", n)
		}
		if n, err := r.Terms.FinishDue(ctx, now); err != nil || n != 0 {
			t.Fatalf("second sweep finished %d terms (err %v), want 0", n, err)
		}

		want := map[primitive.ObjectID]domain.TermStatus{
			past.ID:        domain.TermFinished,
			startingNow.ID: domain.TermFinished,
			upcoming.ID:    domain.TermScheduled,
			cancelled.ID:   domain.TermCancelled,
		}
		for id, status := range want {
			got, err := r.Terms.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("get %s: %v", id.Hex(), err)
			}
			if got.Status != status {
				t.Errorf("term at %s status = %s, want %s", got.StartsAt, got.Status, status)
			}
		}

		expired, err := r.Terms.ListFinishedEndedBefore(ctx, now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("list expired: %v", err)
		}
		if len(expired) != 2 {
			t.Fatalf("%d expired terms, want 2", len(expired))
		}

		deleted, err := r.Terms.DeleteFinished(ctx, []primitive.ObjectID{past.ID, startingNow.ID, upcoming.ID, cancelled.ID})
		if err != nil {
			t.Fatalf("delete finished: %v", err)
		}
		if deleted != 2 {
			t.Fatalf("deleted %d terms, want 2", deleted)
		}
		if _, err := r.Terms.GetByID(ctx, past.ID); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("finished term still readable: %v", err)
		}
		for _, id := range []primitive.ObjectID{upcoming.ID, cancelled.ID} {
			if _, err := r.Terms.GetByID(ctx, id); err != nil {
				t.Fatalf("non-finished term %s was deleted: %v", id.Hex(), err)
			}
		}
	})

	t.Run("conditional writes", func(t *testing.T) {
		term := newTerm(t, r.Terms, at(60), domain.TermScheduled)
		stamp := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)

		term.Capacity = 4
		term.UpdatedAt = stamp
		if err := r.Terms.Update(ctx, term, domain.TermScheduled); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := r.Terms.GetByID(ctx, term.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Capacity != 4 || !got.UpdatedAt.Equal(stamp) {
			t.Fatalf("stored capacity=%d updatedAt=%s, want 4 and %s", got.Capacity, got.UpdatedAt, stamp)
		}

		if err := r.Terms.Update(ctx, term, domain.TermCancelled); !errors.Is(err, repository.ErrUpdateFailed) {
			t.Fatalf("update with stale status: %v, want ErrUpdateFailed", err)
		}

		cancelledAt := stamp.Add(time.Hour)
		if err := r.Terms.TransitionStatus(ctx, term.ID, domain.TermScheduled, domain.TermCancelled, cancelledAt); err != nil {
			t.Fatalf("transition: %v", err)
		}
		got, err = r.Terms.GetByID(ctx, term.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.TermCancelled || !got.UpdatedAt.Equal(cancelledAt) {
			t.Fatalf("status=%s updatedAt=%s, want cancelled at %s", got.Status, got.UpdatedAt, cancelledAt)
		}

		err = r.Terms.TransitionStatus(ctx, term.ID, domain.TermScheduled, domain.TermFinished, cancelledAt)
		if !errors.Is(err, repository.ErrUpdateFailed) {
			t.Fatalf("transition from a stale status: %v, want ErrUpdateFailed", err)
		}
		err = r.Terms.TransitionStatus(ctx, primitive.NewObjectID(), domain.TermScheduled, domain.TermFinished, cancelledAt)
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("transition of a missing term: %v, want ErrNotFound", err)
		}
	})
}

// BookingWrites checks the one-booking-per-member rule and the booking status writes.
func BookingWrites(t *testing.T, r Repos) {
	ctx := context.Background()
	term := newTerm(t, r.Terms, time.Date(2026, 11, 10, 9, 0, 0, 0, time.UTC), domain.TermScheduled)
	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	first := book(t, r.Bookings, term.ID, a, domain.BookingActive)
	book(t, r.Bookings, term.ID, b, domain.BookingActive)
	book(t, r.Bookings, term.ID, c, domain.BookingCancelled)

	_, err := r.Bookings.Create(ctx, &domain.Booking{TermID: term.ID, UserID: a, Status: domain.BookingActive})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second booking for the same member: %v, want ErrDuplicate", err)
	}

	counts, err := r.Bookings.CountActiveByTerms(ctx, []primitive.ObjectID{term.ID})
	if err != nil {
		t.Fatalf("count by terms: %v", err)
	}
	if counts[term.ID] != 2 {
		t.Fatalf("active count = %d, want 2", counts[term.ID])
	}

	cancelledAt := time.Date(2026, 11, 1, 18, 45, 0, 0, time.UTC)
	first.Deactivate(domain.BookingCancelled, cancelledAt)
	if err := r.Bookings.UpdateStatus(ctx, first); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := r.Bookings.GetByTermAndUser(ctx, term.ID, a)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.BookingCancelled || !got.UpdatedAt.Equal(cancelledAt) || got.CancelledAt == nil {
		t.Fatalf("stored booking = %+v, want cancelled at %s", got, cancelledAt)
	}

	termCancelledAt := cancelledAt.Add(time.Hour)
	n, err := r.Bookings.CancelActiveByTerm(ctx, term.ID, domain.BookingTermCancelled, termCancelledAt)
	if err != nil {
		t.Fatalf("cancel active: %v", err)
	}
	if n != 1 {
		t.Fatalf("cancelled %d bookings, want 1", n)
	}
	got, err = r.Bookings.GetByTermAndUser(ctx, term.ID, b)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.BookingTermCancelled || !got.UpdatedAt.Equal(termCancelledAt) {
		t.Fatalf("stored booking = %+v, want term_cancelled at %s", got, termCancelledAt)
	}
	if n, err := r.Bookings.CountActiveByTerm(ctx, term.ID); err != nil || n != 0 {
		t.Fatalf("active count = %d (err %v), want 0", n, err)
	}
}
