package challenge

import (
	"os"
	"path/filepath"
	"testing"
)

func buildTestStore(t *testing.T, slots []Slot, names map[int]string) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "challenge-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "challengedb")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.PutSlots(slots); err != nil {
		t.Fatalf("Failed to put slots: %v", err)
	}
	if err := store.PutEntityNames(names); err != nil {
		t.Fatalf("Failed to put entity names: %v", err)
	}
	if err := store.InitializeMetadata("test.adi"); err != nil {
		t.Fatalf("Failed to initialize metadata: %v", err)
	}

	return path
}

func TestStoreRoundTrip(t *testing.T) {
	slots := []Slot{
		{EntityID: 291, Band: "20M", Mode: "FT8", Confirmed: true},
		{EntityID: 291, Band: "40m", Mode: "CW", Confirmed: true},
		{EntityID: 165, Band: "20m", Confirmed: false},
	}
	names := map[int]string{291: "UNITED STATES OF AMERICA", 165: "MAURITIUS"}
	path := buildTestStore(t, slots, names)

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d slots, want 3", len(got))
	}

	// Bands come back normalized
	for _, slot := range got {
		if slot.Band != "20m" && slot.Band != "40m" {
			t.Errorf("got band %q, want normalized form", slot.Band)
		}
	}

	gotNames, err := store.EntityNames()
	if err != nil {
		t.Fatalf("EntityNames failed: %v", err)
	}
	if gotNames[291] != "UNITED STATES OF AMERICA" {
		t.Errorf("got name %q, want UNITED STATES OF AMERICA", gotNames[291])
	}

	builtAt, err := store.BuiltAt()
	if err != nil {
		t.Fatalf("BuiltAt failed: %v", err)
	}
	if builtAt.IsZero() {
		t.Error("built-at metadata should be set")
	}
}

func TestIsNeeded(t *testing.T) {
	st := NewState()
	st.Load([]Slot{
		{EntityID: 291, Band: "20m", Confirmed: true},
		{EntityID: 291, Band: "40m", Confirmed: false}, // explicitly unconfirmed
	}, map[int]string{291: "UNITED STATES OF AMERICA"})

	tests := []struct {
		entityID int
		band     string
		want     bool
	}{
		{291, "20m", false}, // confirmed
		{291, "20M", false}, // band labels normalize
		{291, "40m", true},  // explicitly unconfirmed
		{291, "15m", true},  // band absent from matrix
		{165, "20m", true},  // entity absent from matrix
		{0, "20m", false},   // not-DXCC-valid sentinel is never needed
		{-1, "20m", false},
	}

	for _, tt := range tests {
		if got := st.IsNeeded(tt.entityID, tt.band); got != tt.want {
			t.Errorf("IsNeeded(%d, %q): got %v, want %v", tt.entityID, tt.band, got, tt.want)
		}
	}
}

func TestIsNeededWithoutSnapshot(t *testing.T) {
	st := NewState()
	if st.IsNeeded(291, "20m") {
		t.Error("nothing should be needed before a snapshot is loaded")
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	slots := []Slot{
		{EntityID: 291, Band: "20m", Confirmed: true},
		{EntityID: 165, Band: "10m", Confirmed: true},
	}
	path := buildTestStore(t, slots, map[int]string{291: "UNITED STATES OF AMERICA", 165: "MAURITIUS"})

	st := NewState()
	if err := st.LoadStore(path); err != nil {
		t.Fatalf("LoadStore failed: %v", err)
	}

	// Every loaded slot reports exactly its stored confirmation
	for _, slot := range slots {
		if st.IsNeeded(slot.EntityID, slot.Band) != !slot.Confirmed {
			t.Errorf("slot (%d, %s): needed mismatch", slot.EntityID, slot.Band)
		}
	}
	if !st.IsNeeded(291, "40m") {
		t.Error("slot absent from the snapshot should be needed")
	}

	confirmed, entities := st.Counts()
	if confirmed != 2 || entities != 2 {
		t.Errorf("got %d slots / %d entities, want 2/2", confirmed, entities)
	}
}

func TestFailedReloadKeepsMatrix(t *testing.T) {
	st := NewState()
	st.Load([]Slot{{EntityID: 291, Band: "20m", Confirmed: true}},
		map[int]string{291: "UNITED STATES OF AMERICA"})

	if err := st.LoadStore(filepath.Join(os.TempDir(), "does", "not", "exist")); err == nil {
		t.Fatal("LoadStore of a missing path should fail")
	}

	// Prior matrix still answers queries
	if st.IsNeeded(291, "20m") {
		t.Error("failed reload must not clear the matrix")
	}
	if !st.IsNeeded(165, "20m") {
		t.Error("failed reload must not alter prior answers")
	}
}
