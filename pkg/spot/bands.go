// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package spot

// Mode labels. ModeUnknown is an explicit answer, not a guess.
const (
	ModeCW      = "CW"
	ModeSSB     = "SSB"
	ModeFT8     = "FT8"
	ModeFT4     = "FT4"
	ModeRTTY    = "RTTY"
	ModeUnknown = "Unknown"
)

type bandRange struct {
	lowKHz  float64
	highKHz float64
	name    string
}

// ARRL band plan, 160m through 6m
var bandPlan = []bandRange{
	{1800, 2000, "160m"},
	{3500, 4000, "80m"},
	{5000, 5450, "60m"},
	{7000, 7300, "40m"},
	{10100, 10150, "30m"},
	{14000, 14350, "20m"},
	{18068, 18168, "17m"},
	{21000, 21450, "15m"},
	{24890, 24990, "12m"},
	{28000, 29700, "10m"},
	{50000, 54000, "6m"},
}

// BandForFrequency returns the band name for a frequency in Hz, empty when
// the frequency falls outside every amateur band.
func BandForFrequency(hz int64) string {
	khz := float64(hz) / 1000
	for _, b := range bandPlan {
		if khz >= b.lowKHz && khz <= b.highKHz {
			return b.name
		}
	}
	return ""
}

type modeSegment struct {
	lowKHz  float64
	highKHz float64
	mode    string
}

// Frequency sub-segments checked in order, so the narrow digital windows
// outrank the CW and phone segments around them. Low edge inclusive, high
// edge exclusive.
var modeSegments = []modeSegment{
	// FT8 windows, 3 kHz above the customary dial frequencies
	{1840, 1843, ModeFT8},
	{3573, 3576, ModeFT8},
	{7074, 7077, ModeFT8},
	{10136, 10139, ModeFT8},
	{14074, 14077, ModeFT8},
	{18100, 18103, ModeFT8},
	{21074, 21077, ModeFT8},
	{24915, 24918, ModeFT8},
	{28074, 28077, ModeFT8},
	{50313, 50316, ModeFT8},
	// FT4 windows
	{3575, 3578, ModeFT4},
	{7047, 7050, ModeFT4},
	{10140, 10143, ModeFT4},
	{14080, 14083, ModeFT4},
	{18104, 18107, ModeFT4},
	{21140, 21143, ModeFT4},
	{24919, 24922, ModeFT4},
	{28180, 28183, ModeFT4},
	{50318, 50321, ModeFT4},
	// CW segments at the bottom of each band
	{1800, 1840, ModeCW},
	{3500, 3570, ModeCW},
	{7000, 7040, ModeCW},
	{10100, 10130, ModeCW},
	{14000, 14070, ModeCW},
	{18068, 18095, ModeCW},
	{21000, 21070, ModeCW},
	{24890, 24910, ModeCW},
	{28000, 28070, ModeCW},
	{50000, 50100, ModeCW},
	// Phone segments
	{1843, 2000, ModeSSB},
	{3600, 4000, ModeSSB},
	{7125, 7300, ModeSSB},
	{14112, 14350, ModeSSB},
	{18110, 18168, ModeSSB},
	{21200, 21450, ModeSSB},
	{24930, 24990, ModeSSB},
	{28300, 29700, ModeSSB},
	{50100, 50313, ModeSSB},
}

// commentModes are explicit mode tags recognized in spot comments, checked
// before any frequency inference.
var commentModes = []string{ModeFT8, ModeFT4, ModeRTTY, ModeCW, ModeSSB, "USB", "LSB"}

// InferMode determines the mode of a spot. An explicit tag in the comment
// wins; otherwise the frequency sub-segment decides; otherwise Unknown.
func InferMode(hz int64, comment string) string {
	upper := " " + toUpperASCII(comment) + " "
	for _, mode := range commentModes {
		if containsWord(upper, mode) {
			if mode == "USB" || mode == "LSB" {
				return ModeSSB
			}
			return mode
		}
	}

	khz := float64(hz) / 1000
	for _, seg := range modeSegments {
		if khz >= seg.lowKHz && khz < seg.highKHz {
			return seg.mode
		}
	}
	return ModeUnknown
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}

// containsWord reports whether word appears in s bounded by non-alphanumeric
// characters, so "FT8" in "FT8 -12dB" matches but "CW" in "MCW" does not.
func containsWord(s, word string) bool {
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] != word {
			continue
		}
		if i > 0 && isAlnum(s[i-1]) {
			continue
		}
		if end := i + len(word); end < len(s) && isAlnum(s[end]) {
			continue
		}
		return true
	}
	return false
}

func isAlnum(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9'
}
