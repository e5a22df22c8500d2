package challenge

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"dxwatch/pkg/model"
)

// Key prefixes inside the store
const (
	keySlot   = "s:" // s:<band>:<entityID> -> msgpack slot record
	keyEntity = "e:" // e:<entityID>        -> entity name
	keyMeta   = "m:" // m:<name>            -> metadata string
)

// Metadata keys
const (
	metaKeySchema     = "schema"
	metaKeyBuiltAt    = "built_at"
	metaKeySourceFile = "source_file"
)

// SchemaVersion is the current slot record layout version
const SchemaVersion = 1

// Slot is one cell of the challenge matrix
type Slot struct {
	EntityID  int
	Band      string
	Mode      string // Mode credited, informational only
	Confirmed bool
}

// Store is the on-disk challenge snapshot, a LevelDB database produced
// offline from a confirmation-log export and loaded read-only by the live
// watcher.
type Store struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Open opens or creates a challenge store at the given path
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open challenge store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenExisting opens a store read-only and fails if it does not exist.
// The live watcher uses this so a bad path cannot create an empty store.
func OpenExisting(path string) (*Store, error) {
	opts := &opt.Options{
		Compression:    opt.SnappyCompression,
		ErrorIfMissing: true,
		ReadOnly:       true,
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open challenge store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the store path
func (s *Store) Path() string {
	return s.path
}

// storedSlot is the msgpack wire form of a slot record
type storedSlot struct {
	EntityID  int
	Band      string
	Mode      string
	Confirmed bool
	Schema    int
}

func slotKeyBytes(entityID int, band string) []byte {
	return []byte(keySlot + NormalizeBand(band) + ":" + strconv.Itoa(entityID))
}

// PutSlots writes slot records in one atomic batch
func (s *Store) PutSlots(slots []Slot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.ErrStoreClosed
	}

	batch := new(leveldb.Batch)
	for _, slot := range slots {
		value, err := msgpack.Marshal(storedSlot{
			EntityID:  slot.EntityID,
			Band:      NormalizeBand(slot.Band),
			Mode:      slot.Mode,
			Confirmed: slot.Confirmed,
			Schema:    SchemaVersion,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal slot: %w", err)
		}
		batch.Put(slotKeyBytes(slot.EntityID, slot.Band), value)
	}

	return s.db.Write(batch, nil)
}

// Slots returns every slot record in the store
func (s *Store) Slots() ([]Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, model.ErrStoreClosed
	}

	var slots []Slot
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keySlot)), nil)
	defer iter.Release()

	for iter.Next() {
		var stored storedSlot
		if err := msgpack.Unmarshal(iter.Value(), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal slot %q: %w", iter.Key(), err)
		}
		slots = append(slots, Slot{
			EntityID:  stored.EntityID,
			Band:      stored.Band,
			Mode:      stored.Mode,
			Confirmed: stored.Confirmed,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("slot iteration failed: %w", err)
	}

	return slots, nil
}

// PutEntityNames stores the entity number -> name mapping carried with the
// snapshot, used to match country-database entities to entity numbers.
func (s *Store) PutEntityNames(names map[int]string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.ErrStoreClosed
	}

	batch := new(leveldb.Batch)
	for id, name := range names {
		batch.Put([]byte(keyEntity+strconv.Itoa(id)), []byte(name))
	}
	return s.db.Write(batch, nil)
}

// EntityNames returns the stored entity number -> name mapping
func (s *Store) EntityNames() (map[int]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, model.ErrStoreClosed
	}

	names := make(map[int]string)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyEntity)), nil)
	defer iter.Release()

	for iter.Next() {
		id, err := strconv.Atoi(strings.TrimPrefix(string(iter.Key()), keyEntity))
		if err != nil {
			return nil, fmt.Errorf("invalid entity key %q: %w", iter.Key(), err)
		}
		names[id] = string(iter.Value())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("entity iteration failed: %w", err)
	}

	return names, nil
}

// SetMetadata sets a metadata key-value pair
func (s *Store) SetMetadata(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.ErrStoreClosed
	}
	return s.db.Put([]byte(keyMeta+key), []byte(value), nil)
}

// GetMetadata retrieves a metadata value, empty when unset
func (s *Store) GetMetadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", model.ErrStoreClosed
	}

	value, err := s.db.Get([]byte(keyMeta+key), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata failed: %w", err)
	}
	return string(value), nil
}

// InitializeMetadata stamps a freshly built store
func (s *Store) InitializeMetadata(sourceFile string) error {
	if err := s.SetMetadata(metaKeySchema, strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}
	if err := s.SetMetadata(metaKeyBuiltAt, time.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	return s.SetMetadata(metaKeySourceFile, sourceFile)
}

// BuiltAt returns the store build timestamp
func (s *Store) BuiltAt() (time.Time, error) {
	value, err := s.GetMetadata(metaKeyBuiltAt)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}
