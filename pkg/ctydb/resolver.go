package ctydb

import (
	"strings"

	"dxwatch/pkg/model"
)

// portableSuffixes are the trailing designators stripped before prefix
// matching. Numeric-only suffixes (e.g. W1AW/7) are handled separately.
var portableSuffixes = map[string]bool{
	"P":   true,
	"M":   true,
	"MM":  true,
	"AM":  true,
	"QRP": true,
}

// NormalizeCall uppercases and trims a callsign as heard on the feed
func NormalizeCall(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}

// baseCall strips portable/mobile suffixes conservatively: only recognized
// designators and numeric-only suffixes come off, and only from the tail,
// so characters belonging to the matched prefix are never removed.
func baseCall(call string) string {
	for {
		idx := strings.LastIndexByte(call, '/')
		if idx <= 0 || idx == len(call)-1 {
			return call
		}
		suffix := call[idx+1:]
		if !portableSuffixes[suffix] && !allDigits(suffix) {
			return call
		}
		call = call[:idx]
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Resolve maps a callsign to its DXCC entity. The exact-callsign exception
// set is consulted first and wins outright; otherwise the longest prefix of
// the normalized callsign decides. A callsign matching nothing returns
// model.ErrUnresolved, which the pipeline treats as data, not failure.
func (d *DB) Resolve(callsign string) (*model.Resolution, error) {
	s := d.snap.Load()
	if s == nil {
		return nil, model.ErrNoSnapshot
	}

	call := NormalizeCall(callsign)
	if call == "" {
		return nil, model.ErrUnresolved
	}
	base := baseCall(call)

	if idx, ok := s.exact[call]; ok {
		return s.resolution(idx), nil
	}
	if base != call {
		if idx, ok := s.exact[base]; ok {
			return s.resolution(idx), nil
		}
	}

	max := len(base)
	if s.maxLen < max {
		max = s.maxLen
	}
	for l := max; l >= 1; l-- {
		if idx, ok := s.prefix[base[:l]]; ok {
			return s.resolution(idx), nil
		}
	}

	return nil, model.ErrUnresolved
}

func (s *snapshot) resolution(ruleIdx int) *model.Resolution {
	r := s.rules[ruleIdx]
	entity := s.entities[r.entity]

	res := &model.Resolution{
		Entity:    entity,
		MatchedBy: r.Match,
		Exact:     r.Exact,
		CQZone:    entity.CQZone,
		ITUZone:   entity.ITUZone,
	}
	if r.CQOverride != 0 {
		res.CQZone = r.CQOverride
	}
	if r.ITUOverride != 0 {
		res.ITUZone = r.ITUOverride
	}
	return res
}
