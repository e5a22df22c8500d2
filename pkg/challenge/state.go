package challenge

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// State is the in-memory challenge matrix: per (entity, band) cell,
// whether the user already holds a confirmed credit. Reloads build a full
// replacement matrix and publish it atomically, so lookups racing a reload
// never see a half-loaded matrix.
type State struct {
	snap atomic.Pointer[matrix]
}

type slotKey struct {
	entityID int
	band     string
}

type matrix struct {
	confirmed map[slotKey]bool
	entities  map[int]string
	loadedAt  time.Time
}

// NewState creates an empty challenge state
func NewState() *State {
	return &State{}
}

// NormalizeBand canonicalizes band labels across sources: lowercase with a
// trailing "m" ("20M", "20" and "20m" all mean the 20 meter band).
func NormalizeBand(band string) string {
	b := strings.ToLower(strings.TrimSpace(band))
	if b == "" {
		return b
	}
	if !strings.HasSuffix(b, "m") {
		b += "m"
	}
	return b
}

// Load publishes a new matrix from slot records and the entity-name
// mapping carried with the snapshot.
func (st *State) Load(slots []Slot, names map[int]string) {
	m := &matrix{
		confirmed: make(map[slotKey]bool, len(slots)),
		entities:  names,
		loadedAt:  time.Now(),
	}
	for _, slot := range slots {
		m.confirmed[slotKey{entityID: slot.EntityID, band: NormalizeBand(slot.Band)}] = slot.Confirmed
	}
	st.snap.Store(m)
}

// LoadStore replaces the matrix from an on-disk snapshot store. Any
// failure leaves the current matrix in place.
func (st *State) LoadStore(path string) error {
	store, err := OpenExisting(path)
	if err != nil {
		return fmt.Errorf("challenge reload: %w", err)
	}
	defer store.Close()

	slots, err := store.Slots()
	if err != nil {
		return fmt.Errorf("challenge reload: %w", err)
	}
	names, err := store.EntityNames()
	if err != nil {
		return fmt.Errorf("challenge reload: %w", err)
	}

	st.Load(slots, names)
	return nil
}

// IsNeeded reports whether a confirmed credit for (entity, band) is still
// missing. An entity unknown to the matrix counts as not yet confirmed.
// The not-DXCC-valid sentinel (id <= 0) can never be credited, so it is
// never needed; with no snapshot loaded nothing is reported needed.
func (st *State) IsNeeded(entityID int, band string) bool {
	m := st.snap.Load()
	if m == nil {
		return false
	}
	if entityID <= 0 {
		return false
	}
	return !m.confirmed[slotKey{entityID: entityID, band: NormalizeBand(band)}]
}

// Loaded reports whether a matrix has been published
func (st *State) Loaded() bool {
	return st.snap.Load() != nil
}

// EntityNames returns the entity number -> name mapping from the loaded
// snapshot, nil when nothing is loaded.
func (st *State) EntityNames() map[int]string {
	m := st.snap.Load()
	if m == nil {
		return nil
	}
	return m.entities
}

// Counts returns the number of confirmed slots and distinct entities
func (st *State) Counts() (slots, entities int) {
	m := st.snap.Load()
	if m == nil {
		return 0, 0
	}
	seen := make(map[int]bool)
	for key, confirmed := range m.confirmed {
		if confirmed {
			slots++
			seen[key.entityID] = true
		}
	}
	return slots, len(seen)
}

// LoadedAt returns the publish time of the current matrix
func (st *State) LoadedAt() time.Time {
	m := st.snap.Load()
	if m == nil {
		return time.Time{}
	}
	return m.loadedAt
}
