package service

import (
	"context"
	"log"
	"strings"
	"time"

	"mnfit/studio-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Skip reasons reported by GenerateWeek.
const (
	SkipInvalidDay = "invalid-day"
	SkipOverlap    = "overlap"
)

const dateFromLayout = "2006-01-02"

// GenerateWeekInput describes one batch. DaysOfWeek uses 0=Sunday..6=Saturday.
type GenerateWeekInput struct {
	DaysOfWeek         []int
	TermsPerDay        int
	Capacity           int
	WorkoutDescription string
	TrainerID          *primitive.ObjectID
	DateFrom           string // YYYY-MM-DD in the studio time zone; empty means today
}

// SkippedSlot is a candidate that was not inserted.
type SkippedSlot struct {
	Dow      int
	StartsAt *time.Time
	EndsAt   *time.Time
	Reason   string
}

// GenerateWeekResult reports the outcome of a batch. Partial success is normal.
type GenerateWeekResult struct {
	WeekStart     time.Time
	InsertedCount int
	SkippedCount  int
	Skipped       []SkippedSlot
	Terms         []*domain.Term
}

// GenerateWeek expands the slot template for the requested weekdays of the week after the
// reference date and inserts every candidate that does not collide with a scheduled term.
func (s *termService) GenerateWeek(ctx context.Context, p domain.Principal, in GenerateWeekInput) (*GenerateWeekResult, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if len(in.DaysOfWeek) == 0 {
		return nil, invalidInput("daysOfWeek is required")
	}
	slots, ok := domain.SlotTemplates[in.TermsPerDay]
	if !ok {
		return nil, invalidInput("termsPerDay must be 2, 3 or 4")
	}
	if in.Capacity < 1 {
		return nil, invalidInput("invalid capacity")
	}

	loc := s.policy.Location
	now := s.clock.Now()
	ref := now
	if in.DateFrom != "" {
		d, err := time.ParseInLocation(dateFromLayout, in.DateFrom, loc)
		if err != nil {
			return nil, invalidInput("dateFrom must be YYYY-MM-DD")
		}
		ref = d
	}
	weekStart := domain.NextWeekMonday(ref, loc)

	trainerID := p.ID
	if in.TrainerID != nil && !in.TrainerID.IsZero() {
		trainerID = *in.TrainerID
	}
	description := strings.TrimSpace(in.WorkoutDescription)

	unlock := s.locks.Lock(scheduleKey)
	defer unlock()

	result := &GenerateWeekResult{WeekStart: weekStart, Skipped: []SkippedSlot{}}
	var accepted []*domain.Term

	for _, dow := range in.DaysOfWeek {
		if dow < 0 || dow > 6 {
			result.Skipped = append(result.Skipped, SkippedSlot{Dow: dow, Reason: SkipInvalidDay})
			continue
		}
		day := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day()+domain.DayOffsetFromMonday(dow), 0, 0, 0, 0, loc)

		for _, slot := range slots {
			startsAt, endsAt := slot.On(day, loc)
			startsAt, endsAt = startsAt.UTC(), endsAt.UTC()
			status := domain.InitialStatus(startsAt, now)

			if status == domain.TermScheduled {
				overlap, err := s.termRepo.HasOverlap(ctx, startsAt, endsAt, nil)
				if err != nil {
					return nil, internalError(err)
				}
				if overlap || overlapsBatch(accepted, startsAt, endsAt) {
					st, en := startsAt, endsAt
					result.Skipped = append(result.Skipped, SkippedSlot{Dow: dow, StartsAt: &st, EndsAt: &en, Reason: SkipOverlap})
					continue
				}
			}

			accepted = append(accepted, &domain.Term{
				Capacity:           in.Capacity,
				StartsAt:           startsAt,
				EndsAt:             endsAt,
				Status:             status,
				TrainerID:          trainerID,
				WorkoutDescription: description,
				CreatedBy:          p.ID,
				CreatedAt:          now,
				UpdatedAt:          now,
			})
		}
	}

	if len(accepted) > 0 {
		if _, err := s.termRepo.CreateMany(ctx, accepted); err != nil {
			return nil, internalError(err)
		}
	}

	result.Terms = accepted
	result.InsertedCount = len(accepted)
	result.SkippedCount = len(result.Skipped)

	log.Printf("INFO: Week of %s generated by %s: %d inserted, %d skipped",
		weekStart.Format(dateFromLayout), p.ID.Hex(), result.InsertedCount, result.SkippedCount)
	return result, nil
}

// overlapsBatch checks a candidate against scheduled terms already accepted in the same batch,
// which the store does not see until the bulk insert.
func overlapsBatch(batch []*domain.Term, start, end time.Time) bool {
	for _, t := range batch {
		if t.Status == domain.TermScheduled && domain.Overlaps(t.StartsAt, t.EndsAt, start, end) {
			return true
		}
	}
	return false
}
