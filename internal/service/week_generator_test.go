package service

import (
	"context"
	"testing"
	"time"

	"mnfit/studio-api/internal/domain"
)

func TestGenerateWeekSkipsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Tuesday of next week, 16:00-17:00, collides with the 15:00-17:00 slot.
	if _, err := f.terms.Create(ctx, f.trainer, TermInput{Capacity: 5, StartsAt: at(6, 16), EndsAt: at(6, 17)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := f.terms.GenerateWeek(ctx, f.admin, GenerateWeekInput{
		DaysOfWeek:  []int{1, 2},
		TermsPerDay: 3,
		Capacity:    20,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if want := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC); !res.WeekStart.Equal(want) {
		t.Errorf("week start = %s, want %s", res.WeekStart, want)
	}
	if res.InsertedCount != 5 || res.SkippedCount != 1 {
		t.Fatalf("inserted=%d skipped=%d, want 5 and 1", res.InsertedCount, res.SkippedCount)
	}
	skip := res.Skipped[0]
	if skip.Reason != SkipOverlap || skip.Dow != 2 {
		t.Errorf("skip = %+v", skip)
	}
	if skip.StartsAt == nil || !skip.StartsAt.Equal(at(6, 15)) || !skip.EndsAt.Equal(at(6, 17)) {
		t.Errorf("skipped slot = %v - %v", skip.StartsAt, skip.EndsAt)
	}

	for _, term := range res.Terms {
		stored := f.storedTerm(t, term.ID)
		if stored.Status != domain.TermScheduled || stored.Capacity != 20 || stored.TrainerID != f.admin.ID || stored.CreatedBy != f.admin.ID {
			t.Errorf("stored term = %+v", stored)
		}
	}
}

func TestGenerateWeekTemplates(t *testing.T) {
	tests := []struct {
		termsPerDay int
		wantStarts  []int
	}{
		{2, []int{13, 17}},
		{3, []int{13, 15, 17}},
		{4, []int{12, 14, 16, 18}},
	}

	for _, tt := range tests {
		f := newFixture(t)
		res, err := f.terms.GenerateWeek(context.Background(), f.admin, GenerateWeekInput{
			DaysOfWeek:  []int{0},
			TermsPerDay: tt.termsPerDay,
			Capacity:    10,
		})
		if err != nil {
			t.Fatalf("termsPerDay=%d: %v", tt.termsPerDay, err)
		}
		if res.InsertedCount != len(tt.wantStarts) {
			t.Fatalf("termsPerDay=%d: inserted %d", tt.termsPerDay, res.InsertedCount)
		}
		// Sunday closes the generated week: Monday + 6 days.
		for i, term := range res.Terms {
			if want := at(11, tt.wantStarts[i]); !term.StartsAt.Equal(want) {
				t.Errorf("termsPerDay=%d slot %d starts %s, want %s", tt.termsPerDay, i, term.StartsAt, want)
			}
			if !term.EndsAt.Equal(term.StartsAt.Add(2 * time.Hour)) {
				t.Errorf("slot %d ends %s", i, term.EndsAt)
			}
		}
	}
}

func TestGenerateWeekDateFrom(t *testing.T) {
	tests := []struct {
		dateFrom string
		want     time.Time
	}{
		{"2026-10-17", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}, // Saturday
		{"2026-10-18", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}, // Sunday still belongs to the week of the 12th
		{"2026-10-19", time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)}, // Monday
	}

	for _, tt := range tests {
		t.Run(tt.dateFrom, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.terms.GenerateWeek(context.Background(), f.admin, GenerateWeekInput{
				DaysOfWeek:  []int{3},
				TermsPerDay: 2,
				Capacity:    10,
				DateFrom:    tt.dateFrom,
			})
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if !res.WeekStart.Equal(tt.want) {
				t.Errorf("week start = %s, want %s", res.WeekStart, tt.want)
			}
		})
	}
}

func TestGenerateWeekPastSlotsAreFinished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A reference date in the previous week targets the current week, whose Monday is past.
	res, err := f.terms.GenerateWeek(ctx, f.admin, GenerateWeekInput{
		DaysOfWeek:  []int{1, 5},
		TermsPerDay: 2,
		Capacity:    10,
		DateFrom:    "2026-10-07",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.InsertedCount != 4 || res.SkippedCount != 0 {
		t.Fatalf("inserted=%d skipped=%d", res.InsertedCount, res.SkippedCount)
	}

	for _, term := range res.Terms {
		want := domain.TermScheduled
		if term.StartsAt.Weekday() == time.Monday {
			want = domain.TermFinished
		}
		if term.Status != want {
			t.Errorf("%s: status %s, want %s", term.StartsAt, term.Status, want)
		}
	}
}

func TestGenerateWeekSkipsInvalidAndRepeatedDays(t *testing.T) {
	f := newFixture(t)

	res, err := f.terms.GenerateWeek(context.Background(), f.admin, GenerateWeekInput{
		DaysOfWeek:  []int{7, 4, -1, 4},
		TermsPerDay: 2,
		Capacity:    10,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.InsertedCount != 2 || res.SkippedCount != 4 {
		t.Fatalf("inserted=%d skipped=%d, want 2 and 4", res.InsertedCount, res.SkippedCount)
	}

	reasons := map[string]int{}
	for _, s := range res.Skipped {
		reasons[s.Reason]++
	}
	if reasons[SkipInvalidDay] != 2 || reasons[SkipOverlap] != 2 {
		t.Fatalf("reasons = %v", reasons)
	}
}

func TestGenerateWeekValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		p    domain.Principal
		in   GenerateWeekInput
		want error
	}{
		{"trainer forbidden", f.trainer, GenerateWeekInput{DaysOfWeek: []int{1}, TermsPerDay: 2, Capacity: 10}, ErrForbidden},
		{"no days", f.admin, GenerateWeekInput{TermsPerDay: 2, Capacity: 10}, ErrInvalidInput},
		{"bad template", f.admin, GenerateWeekInput{DaysOfWeek: []int{1}, TermsPerDay: 5, Capacity: 10}, ErrInvalidInput},
		{"bad capacity", f.admin, GenerateWeekInput{DaysOfWeek: []int{1}, TermsPerDay: 2}, ErrInvalidInput},
		{"bad date", f.admin, GenerateWeekInput{DaysOfWeek: []int{1}, TermsPerDay: 2, Capacity: 10, DateFrom: "17.10.2026"}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.terms.GenerateWeek(ctx, tt.p, tt.in)
			assertErr(t, err, tt.want)
		})
	}
}

func TestGenerateWeekUsesStudioTimeZone(t *testing.T) {
	zagreb, err := time.LoadLocation("Europe/Zagreb")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	f := newFixture(t)
	policy := Policy{WeeklyLimit: 3, Location: zagreb}
	terms := NewTermService(f.store.Terms(), f.store.Bookings(), f.store.Users(), f.lifecycle, f.locks, f.clock, policy)

	res, err := terms.GenerateWeek(context.Background(), f.admin, GenerateWeekInput{
		DaysOfWeek:  []int{1},
		TermsPerDay: 2,
		Capacity:    10,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 13:00 on Monday 19 October 2026 is still summer time in Zagreb, so 11:00 UTC.
	if want := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC); !res.Terms[0].StartsAt.Equal(want) {
		t.Fatalf("first slot = %s, want %s", res.Terms[0].StartsAt, want)
	}
}
