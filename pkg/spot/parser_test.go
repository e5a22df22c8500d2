package spot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"dxwatch/pkg/model"
)

func cc11Line(freq, call, spotter, comment, grid, ip string) string {
	fields := make([]string, 23)
	fields[cc11Type] = "CC11"
	fields[cc11Freq] = freq
	fields[cc11DXCall] = call
	fields[cc11Date] = "25-Aug-2026"
	fields[cc11Time] = "1201Z"
	fields[cc11Spotter] = spotter
	fields[cc11Comment] = comment
	fields[cc11DXGrid] = grid
	fields[cc11SpotterIP] = ip
	return strings.Join(fields, "^")
}

func TestParseLineNotASpot(t *testing.T) {
	p := NewParser()
	lines := []string{
		"Connected to VE7CC cluster",
		"WWV de W0MU <18>:   SFI=140, A=5, K=2, No Storms",
		"To ALL de K5XYZ: anyone copy the dxpedition?",
		"login: ",
		"",
	}
	for _, line := range lines {
		s, err := p.ParseLine(line)
		if err != nil {
			t.Errorf("ParseLine(%q) failed: %v", line, err)
		}
		if s != nil {
			t.Errorf("ParseLine(%q): got a spot, want NotASpot", line)
		}
	}
	if got := p.Anomalies(); got != 0 {
		t.Errorf("got %d anomalies, want 0", got)
	}
}

func TestParseCC11(t *testing.T) {
	p := NewParser()
	s, err := p.ParseLine(cc11Line("14074.0", "ja1abc", "w2xyz", "FT8 -12 dB", "PM95", "203.0.113.5"))
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if s == nil {
		t.Fatal("got NotASpot, want a spot")
	}

	if s.DXCall != "JA1ABC" {
		t.Errorf("got DX call %q, want JA1ABC", s.DXCall)
	}
	if s.Spotter != "W2XYZ" {
		t.Errorf("got spotter %q, want W2XYZ", s.Spotter)
	}
	if s.FrequencyHz != 14074000 {
		t.Errorf("got %d Hz, want 14074000", s.FrequencyHz)
	}
	if s.Band != "20m" {
		t.Errorf("got band %q, want 20m", s.Band)
	}
	if s.Mode != ModeFT8 {
		t.Errorf("got mode %q, want FT8", s.Mode)
	}
	if s.DXGrid != "PM95" {
		t.Errorf("got grid %q, want PM95", s.DXGrid)
	}
	if got := s.SpotterIP.String(); got != "203.0.113.5" {
		t.Errorf("got spotter IP %q, want 203.0.113.5", got)
	}
	if s.Variant != VariantCC11 {
		t.Errorf("got variant %q, want %q", s.Variant, VariantCC11)
	}

	want := time.Date(2026, time.August, 25, 12, 1, 0, 0, time.UTC)
	if !s.Time.Equal(want) {
		t.Errorf("got time %v, want %v", s.Time, want)
	}
}

func TestParseCC11BadFrequency(t *testing.T) {
	p := NewParser()
	s, err := p.ParseLine(cc11Line("bogus", "JA1ABC", "W2XYZ", "", "", ""))
	if !errors.Is(err, model.ErrInvalidFreq) {
		t.Errorf("got %v, want ErrInvalidFreq", err)
	}
	if s != nil {
		t.Error("a dropped line must not produce a spot")
	}
	if got := p.Anomalies(); got != 1 {
		t.Errorf("got %d anomalies, want 1", got)
	}
}

func TestParseCC11ShortLine(t *testing.T) {
	p := NewParser()
	_, err := p.ParseLine("CC11^14074.0^JA1ABC^")
	if !errors.Is(err, model.ErrFormat) {
		t.Errorf("got %v, want ErrFormat", err)
	}
	if got := p.Anomalies(); got != 1 {
		t.Errorf("got %d anomalies, want 1", got)
	}
}

func TestParseDXDe(t *testing.T) {
	p := NewParser()
	s, err := p.ParseLine("DX de W2XYZ:     14074.0  JA1ABC       FT8 -12 dB                     1201Z FN20")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if s == nil {
		t.Fatal("got NotASpot, want a spot")
	}

	if s.Spotter != "W2XYZ" {
		t.Errorf("got spotter %q, want W2XYZ", s.Spotter)
	}
	if s.DXCall != "JA1ABC" {
		t.Errorf("got DX call %q, want JA1ABC", s.DXCall)
	}
	if s.Comment != "FT8 -12 dB" {
		t.Errorf("got comment %q, want %q", s.Comment, "FT8 -12 dB")
	}
	if s.DXGrid != "FN20" {
		t.Errorf("got grid %q, want FN20", s.DXGrid)
	}
	if s.Band != "20m" || s.Mode != ModeFT8 {
		t.Errorf("got band %q mode %q, want 20m FT8", s.Band, s.Mode)
	}
	if s.Variant != VariantDXDe {
		t.Errorf("got variant %q, want %q", s.Variant, VariantDXDe)
	}
	if s.Time.Hour() != 12 || s.Time.Minute() != 1 {
		t.Errorf("got time %v, want 12:01Z", s.Time)
	}
}

func TestParseDXDeWithoutTimeToken(t *testing.T) {
	p := NewParser()
	s, err := p.ParseLine("DX de W2XYZ: 7005.0 OH2BH big signal")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if s.Comment != "big signal" {
		t.Errorf("got comment %q, want %q", s.Comment, "big signal")
	}
	if s.Band != "40m" || s.Mode != ModeCW {
		t.Errorf("got band %q mode %q, want 40m CW", s.Band, s.Mode)
	}
}

func TestBandForFrequency(t *testing.T) {
	tests := []struct {
		hz   int64
		want string
	}{
		{1830000, "160m"},
		{3573000, "80m"},
		{5357000, "60m"},
		{14074000, "20m"},
		{50125000, "6m"},
		{14350000, "20m"}, // band edge inclusive
		{9000000, ""},     // between bands
		{144200000, ""},   // above 6m
	}
	for _, tt := range tests {
		if got := BandForFrequency(tt.hz); got != tt.want {
			t.Errorf("BandForFrequency(%d): got %q, want %q", tt.hz, got, tt.want)
		}
	}
}

func TestInferMode(t *testing.T) {
	tests := []struct {
		hz      int64
		comment string
		want    string
	}{
		{14074000, "", ModeFT8},
		{14020000, "", ModeCW},
		{14200000, "", ModeSSB},
		{7047500, "", ModeFT4},
		{7100000, "", ModeUnknown}, // between segments
		{14074000, "CW up 2", ModeCW}, // explicit tag outranks frequency
		{28500000, "LSB contest", ModeSSB},
		{14020000, "MCW test", ModeCW}, // "MCW" is not a CW tag; frequency decides
	}
	for _, tt := range tests {
		if got := InferMode(tt.hz, tt.comment); got != tt.want {
			t.Errorf("InferMode(%d, %q): got %q, want %q", tt.hz, tt.comment, got, tt.want)
		}
	}
}
