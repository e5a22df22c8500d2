package ctydb

import (
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"dxwatch/pkg/model"
)

// DB is the in-memory country database. Lookups read an immutable snapshot
// published with an atomic pointer swap, so a reload never exposes a
// partially-built table to concurrent readers.
type DB struct {
	snap        atomic.Pointer[snapshot]
	ambiguities atomic.Int64
}

type rule struct {
	model.PrefixRule
	entity int // index into snapshot.entities
}

type snapshot struct {
	entities []model.Entity
	rules    []rule
	exact    map[string]int // exact callsign -> rule index
	prefix   map[string]int // prefix -> rule index
	maxLen   int            // longest prefix in the table
	loadedAt time.Time
}

// New creates an empty country database
func New() *DB {
	return &DB{}
}

// Load parses the country database and publishes it as the new snapshot.
// On any format error the previous snapshot stays in place.
func (d *DB) Load(r io.Reader) error {
	groups, err := Parse(r)
	if err != nil {
		return err
	}
	d.snap.Store(d.build(groups))
	return nil
}

// LoadFile loads the country database from a file on disk
func (d *DB) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return d.Load(f)
}

// build indexes parsed groups into a lookup snapshot. Duplicate match
// tokens are the identical-length tie case: the first-loaded rule wins and
// the collision is counted as an anomaly rather than silently resolved.
func (d *DB) build(groups []Group) *snapshot {
	s := &snapshot{
		exact:    make(map[string]int),
		prefix:   make(map[string]int),
		loadedAt: time.Now(),
	}

	for _, g := range groups {
		entityIdx := len(s.entities)
		s.entities = append(s.entities, g.Entity)

		for _, pr := range g.Rules {
			ruleIdx := len(s.rules)
			s.rules = append(s.rules, rule{PrefixRule: pr, entity: entityIdx})

			if pr.Exact {
				if prev, dup := s.exact[pr.Match]; dup {
					d.ambiguities.Add(1)
					log.Printf("WARN: duplicate exact callsign %q (%s, first loaded as %s)",
						pr.Match, g.Entity.Name, s.entities[s.rules[prev].entity].Name)
					continue
				}
				s.exact[pr.Match] = ruleIdx
				continue
			}

			if prev, dup := s.prefix[pr.Match]; dup {
				d.ambiguities.Add(1)
				log.Printf("WARN: duplicate prefix %q (%s, first loaded as %s)",
					pr.Match, g.Entity.Name, s.entities[s.rules[prev].entity].Name)
				continue
			}
			s.prefix[pr.Match] = ruleIdx
			if len(pr.Match) > s.maxLen {
				s.maxLen = len(pr.Match)
			}
		}
	}

	return s
}

// SetEntityNumbers assigns ARRL entity numbers to loaded entities by
// normalized name, using the supplied id -> name mapping. Returns the
// number of entities matched. Publishing is atomic; concurrent resolvers
// see either all old or all new numbers.
func (d *DB) SetEntityNumbers(names map[int]string) int {
	s := d.snap.Load()
	if s == nil {
		return 0
	}

	byName := make(map[string]int, len(names))
	for id, name := range names {
		byName[NormalizeName(name)] = id
	}

	next := &snapshot{
		entities: make([]model.Entity, len(s.entities)),
		rules:    s.rules,
		exact:    s.exact,
		prefix:   s.prefix,
		maxLen:   s.maxLen,
		loadedAt: s.loadedAt,
	}
	copy(next.entities, s.entities)

	matched := 0
	for i := range next.entities {
		if id, ok := byName[lotwName(next.entities[i].Name)]; ok {
			next.entities[i].ID = id
			matched++
		}
	}

	d.snap.Store(next)
	return matched
}

// Loaded reports whether a snapshot has been published
func (d *DB) Loaded() bool {
	return d.snap.Load() != nil
}

// Counts returns the number of entities and match rules in the current snapshot
func (d *DB) Counts() (entities, rules int) {
	s := d.snap.Load()
	if s == nil {
		return 0, 0
	}
	return len(s.entities), len(s.rules)
}

// Ambiguities returns the number of duplicate-token anomalies seen at load time
func (d *DB) Ambiguities() int64 {
	return d.ambiguities.Load()
}

// LoadedAt returns the publish time of the current snapshot
func (d *DB) LoadedAt() time.Time {
	s := d.snap.Load()
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}
