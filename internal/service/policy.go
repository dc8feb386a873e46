package service

import (
	"time"

	"mnfit/studio-api/internal/domain"
)

// Defaults used when the configuration leaves a value unset.
const (
	DefaultRetention        = 7 * 24 * time.Hour
	DefaultGenerateCapacity = 20
)

// Policy carries the studio rules shared by the term, reservation and lifecycle services.
type Policy struct {
	WeeklyLimit int            // active bookings per member per calendar week
	Retention   time.Duration  // how long finished terms are kept after they end
	Location    *time.Location // studio time zone for week boundaries and templates
}

func (p Policy) withDefaults() Policy {
	if p.WeeklyLimit <= 0 {
		p.WeeklyLimit = domain.DefaultWeeklyLimit
	}
	if p.Retention <= 0 {
		p.Retention = DefaultRetention
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return p
}
