package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"mnfit/studio-api/internal/domain"
)

// DefaultArchivePrefix is used when no key prefix is configured.
const DefaultArchivePrefix = "retention"

// PurgeBatch is one retention run: the finished terms about to be deleted and all their bookings.
type PurgeBatch struct {
	Cutoff   time.Time        `json:"cutoff"`
	PurgedAt time.Time        `json:"purgedAt"`
	Terms    []domain.Term    `json:"terms"`
	Bookings []domain.Booking `json:"bookings"`
}

// RetentionArchiver stores a copy of purged data before the retention job deletes it.
type RetentionArchiver interface {
	// Archive writes the batch and returns the object key it was stored under.
	Archive(ctx context.Context, batch PurgeBatch) (string, error)
}

// ArchiveKey builds the object key for a batch: <prefix>/YYYY/MM/DD/<id>.json, dated by the purge time.
func ArchiveKey(prefix string, purgedAt time.Time, id string) string {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	t := purgedAt.UTC()
	return path.Join(prefix, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())), fmt.Sprintf("%02d", t.Day()), id+".json")
}

// EncodeBatch renders a batch as the JSON document stored in the archive.
func EncodeBatch(batch PurgeBatch) ([]byte, error) {
	if batch.Terms == nil {
		batch.Terms = []domain.Term{}
	}
	if batch.Bookings == nil {
		batch.Bookings = []domain.Booking{}
	}
	return json.Marshal(batch)
}
