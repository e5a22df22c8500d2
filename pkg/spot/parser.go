// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package spot

import (
	"fmt"
	"math"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"dxwatch/pkg/model"
)

// Grammar variant names, recorded on each parsed spot
const (
	VariantCC11 = "cc11"
	VariantDXDe = "dxde"
)

// CC11 caret-delimited field indices, per the feed's documented layout
const (
	cc11Type      = 0
	cc11Freq      = 1
	cc11DXCall    = 2
	cc11Date      = 3
	cc11Time      = 4
	cc11Spotter   = 5
	cc11Comment   = 6
	cc11DXGrid    = 19
	cc11SpotterIP = 21

	cc11MinFields = 20
)

var (
	zuluRe = regexp.MustCompile(`^\d{4}Z$`)
	gridRe = regexp.MustCompile(`^[A-Ra-r]{2}\d{2}(?:[A-Xa-x]{2})?$`)
)

// Parser recognizes spot lines among everything else a cluster feed
// carries. Grammar variants are tried in a fixed priority order; a line
// matching no variant is not a spot and not an error. A line that matches
// a variant but carries an unparseable field is dropped and counted.
type Parser struct {
	anomalies atomic.Int64
	now       func() time.Time
}

// NewParser creates a spot line parser
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// ParseLine parses one raw feed line. A nil spot with a nil error means
// the line is not a spot (banner, command response, WWV, chat).
func (p *Parser) ParseLine(line string) (*model.Spot, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	switch {
	case strings.HasPrefix(line, "CC11^"):
		return p.parseCC11(line)
	case strings.HasPrefix(line, "DX de "):
		return p.parseDXDe(line)
	}
	return nil, nil
}

// Anomalies returns the number of spot-shaped lines dropped for an
// unparseable field.
func (p *Parser) Anomalies() int64 {
	return p.anomalies.Load()
}

func (p *Parser) anomaly(format string, args ...interface{}) error {
	p.anomalies.Add(1)
	return fmt.Errorf(format, args...)
}

// parseCC11 parses the machine-readable caret-delimited feed format
func (p *Parser) parseCC11(line string) (*model.Spot, error) {
	fields := strings.Split(line, "^")
	if len(fields) < cc11MinFields {
		return nil, p.anomaly("cc11 line has %d fields, need %d: %w", len(fields), cc11MinFields, model.ErrFormat)
	}

	hz, err := parseFrequency(fields[cc11Freq])
	if err != nil {
		return nil, p.anomaly("cc11 frequency %q: %w", fields[cc11Freq], err)
	}

	s := &model.Spot{
		Spotter:     strings.ToUpper(strings.TrimSpace(fields[cc11Spotter])),
		DXCall:      strings.ToUpper(strings.TrimSpace(fields[cc11DXCall])),
		FrequencyHz: hz,
		Comment:     strings.TrimSpace(fields[cc11Comment]),
		Time:        p.parseCC11Time(fields[cc11Date], fields[cc11Time]),
		DXGrid:      strings.TrimSpace(fields[cc11DXGrid]),
		Variant:     VariantCC11,
	}
	if s.DXCall == "" {
		return nil, p.anomaly("cc11 line missing DX callsign: %w", model.ErrFormat)
	}
	if len(fields) > cc11SpotterIP {
		if addr, err := netip.ParseAddr(strings.TrimSpace(fields[cc11SpotterIP])); err == nil {
			s.SpotterIP = addr
		}
	}

	s.Band = BandForFrequency(hz)
	s.Mode = InferMode(hz, s.Comment)
	return s, nil
}

// parseCC11Time combines the date and Zulu time fields. Falls back to the
// receive time when the feed's stamp is unreadable.
func (p *Parser) parseCC11Time(date, zulu string) time.Time {
	t, err := time.Parse("2-Jan-2006 1504Z", strings.TrimSpace(date)+" "+strings.TrimSpace(zulu))
	if err != nil {
		return p.now().UTC().Truncate(time.Second)
	}
	return t
}

// parseDXDe parses the classic human-readable layout:
//
//	DX de W2XYZ:     14074.0  JA1ABC       FT8 -12 dB        1201Z FN20
func (p *Parser) parseDXDe(line string) (*model.Spot, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "DX de "))
	if len(fields) < 3 {
		return nil, p.anomaly("dxde line has too few fields: %w", model.ErrFormat)
	}

	spotter := strings.ToUpper(strings.TrimSuffix(fields[0], ":"))
	hz, err := parseFrequency(fields[1])
	if err != nil {
		return nil, p.anomaly("dxde frequency %q: %w", fields[1], err)
	}
	dxCall := strings.ToUpper(fields[2])

	s := &model.Spot{
		Spotter:     spotter,
		DXCall:      dxCall,
		FrequencyHz: hz,
		Time:        p.now().UTC().Truncate(time.Second),
		Variant:     VariantDXDe,
	}

	// Everything between the callsign and the trailing time token is
	// comment; a grid square may follow the time.
	rest := fields[3:]
	for i, tok := range rest {
		if !zuluRe.MatchString(tok) {
			continue
		}
		s.Comment = strings.Join(rest[:i], " ")
		if t, err := time.Parse("1504Z", tok); err == nil {
			now := p.now().UTC()
			s.Time = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		}
		if i+1 < len(rest) && gridRe.MatchString(rest[i+1]) {
			s.DXGrid = rest[i+1]
		}
		rest = nil
		break
	}
	if rest != nil {
		s.Comment = strings.Join(rest, " ")
	}

	s.Band = BandForFrequency(hz)
	s.Mode = InferMode(hz, s.Comment)
	return s, nil
}

// parseFrequency converts a kHz field, optionally fractional, to Hz
func parseFrequency(field string) (int64, error) {
	khz, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || khz <= 0 {
		return 0, model.ErrInvalidFreq
	}
	return int64(math.Round(khz * 1000)), nil
}
