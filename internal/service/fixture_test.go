package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository/memory"
	"mnfit/studio-api/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wednesday, 14 October 2026, 10:00 UTC.
var fixtureNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store        *memory.Store
	clock        *ManualClock
	locks        *KeyedLocker
	lifecycle    LifecycleService
	terms        TermService
	reservations ReservationService
	admin        domain.Principal
	trainer      domain.Principal
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithArchiver(t, nil)
}

func newFixtureWithArchiver(t *testing.T, archiver storage.RetentionArchiver) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := NewManualClock(fixtureNow)
	locks := NewKeyedLocker()
	policy := Policy{WeeklyLimit: 3, Retention: 7 * 24 * time.Hour, Location: time.UTC}

	lifecycle := NewLifecycleService(store.Terms(), store.Bookings(), archiver, clock, policy)
	f := &fixture{
		store:        store,
		clock:        clock,
		locks:        locks,
		lifecycle:    lifecycle,
		terms:        NewTermService(store.Terms(), store.Bookings(), store.Users(), lifecycle, locks, clock, policy),
		reservations: NewReservationService(store.Terms(), store.Bookings(), store.Users(), lifecycle, locks, clock, policy),
	}
	f.admin = f.user(t, "Ana", "Admin", domain.RoleAdmin)
	f.trainer = f.user(t, "Tin", "Trainer", domain.RoleTrainer)
	return f
}

func (f *fixture) user(t *testing.T, first, last string, role domain.Role) domain.Principal {
	t.Helper()
	u := &domain.User{
		FirstName: first,
		LastName:  last,
		Email:     primitive.NewObjectID().Hex() + "@example.com",
		Role:      role,
	}
	if _, err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return domain.Principal{ID: u.ID, Role: u.Role}
}

func (f *fixture) member(t *testing.T) domain.Principal {
	return f.user(t, "Mia", "Member", domain.RoleMember)
}

// term creates a term owned by the fixture trainer, starting at start and lasting two hours.
func (f *fixture) term(t *testing.T, start time.Time, capacity int) *domain.Term {
	t.Helper()
	term, err := f.terms.Create(context.Background(), f.trainer, TermInput{
		Capacity: capacity,
		StartsAt: start,
		EndsAt:   start.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create term at %s: %v", start, err)
	}
	return term
}

// at returns fixtureNow shifted by days and set to the given hour.
func at(days, hour int) time.Time {
	return time.Date(fixtureNow.Year(), fixtureNow.Month(), fixtureNow.Day()+days, hour, 0, 0, 0, time.UTC)
}

func (f *fixture) activeCount(t *testing.T, termID primitive.ObjectID) int64 {
	t.Helper()
	n, err := f.store.Bookings().CountActiveByTerm(context.Background(), termID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) storedTerm(t *testing.T, id primitive.ObjectID) *domain.Term {
	t.Helper()
	term, err := f.store.Terms().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get term %s: %v", id.Hex(), err)
	}
	return term
}

func assertErr(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("error = %v, want %v", got, want)
	}
}

func assertKind(t *testing.T, got error, want Kind) {
	t.Helper()
	if k := KindOf(got); k != want {
		t.Fatalf("kind of %v = %s, want %s", got, k, want)
	}
}
