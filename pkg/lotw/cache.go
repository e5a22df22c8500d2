package lotw

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"dxwatch/pkg/model"
)

// ActiveWindow is the freshness boundary: a user whose last upload is at
// most this old counts as active.
const ActiveWindow = 90 * 24 * time.Hour

// Source supplies the raw activity snapshot. The HTTP fetcher implements
// it for production; tests inject readers directly.
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// Cache holds the callsign -> last-upload table. Refresh builds a complete
// replacement table and publishes it atomically; lookups racing a refresh
// see either the old table or the new one, never a mix. A callsign absent
// from the table means "not a user", not "inactive".
type Cache struct {
	snap atomic.Pointer[table]
}

type table struct {
	users     map[string]time.Time
	refreshed time.Time
}

// NewCache creates an empty activity cache
func NewCache() *Cache {
	return &Cache{}
}

// Refresh replaces the whole table from the source. A fetch or parse
// failure leaves the existing table untouched: stale data beats no data.
func (c *Cache) Refresh(ctx context.Context, src Source) error {
	rc, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("activity refresh: %w", err)
	}
	defer rc.Close()

	records, err := ParseActivity(rc)
	if err != nil {
		return fmt.Errorf("activity refresh: %w", err)
	}

	users := make(map[string]time.Time, len(records))
	for _, rec := range records {
		users[rec.Callsign] = rec.LastUpload
	}

	c.snap.Store(&table{users: users, refreshed: time.Now()})
	return nil
}

// Lookup returns the activity record for a callsign. Portable suffixes are
// dropped before the lookup since uploads are filed under the base call.
func (c *Cache) Lookup(callsign string) (model.ActivityRecord, bool) {
	t := c.snap.Load()
	if t == nil {
		return model.ActivityRecord{}, false
	}

	base := strings.ToUpper(strings.TrimSpace(callsign))
	if idx := strings.IndexByte(base, '/'); idx > 0 {
		base = base[:idx]
	}

	last, ok := t.users[base]
	if !ok {
		return model.ActivityRecord{}, false
	}
	return model.ActivityRecord{Callsign: base, LastUpload: last}, true
}

// Classify applies the freshness boundary to a known record
func Classify(rec model.ActivityRecord, now time.Time) model.ActivityStatus {
	if now.Sub(rec.LastUpload) <= ActiveWindow {
		return model.ActiveUser
	}
	return model.InactiveUser
}

// Status combines Lookup and Classify for the enrichment hot path
func (c *Cache) Status(callsign string, now time.Time) (model.ActivityStatus, time.Time) {
	rec, ok := c.Lookup(callsign)
	if !ok {
		return model.NotUser, time.Time{}
	}
	return Classify(rec, now), rec.LastUpload
}

// Len returns the number of callsigns in the current table
func (c *Cache) Len() int {
	t := c.snap.Load()
	if t == nil {
		return 0
	}
	return len(t.users)
}

// RefreshedAt returns the publish time of the current table
func (c *Cache) RefreshedAt() time.Time {
	t := c.snap.Load()
	if t == nil {
		return time.Time{}
	}
	return t.refreshed
}
