package ctydb

import (
	"regexp"
	"strings"
)

// ctyToLoTW maps CTY.DAT entity names to the names the LoTW entity table
// uses where the two disagree. Extended as mismatches are discovered.
var ctyToLoTW = map[string]string{
	"United States":    "UNITED STATES OF AMERICA",
	"Hawaii":           "HAWAIIAN ISLANDS",
	"Alaska":           "ALASKA",
	"Sicily":           "ITALY",
	"Sardinia":         "SARDINIA",
	"England":          "ENGLAND",
	"Scotland":         "SCOTLAND",
	"Wales":            "WALES",
	"Northern Ireland": "NORTHERN IRELAND",
	"Guantanamo Bay":   "GUANTANAMO BAY",
	"Puerto Rico":      "PUERTO RICO",
	"Virgin Islands":   "VIRGIN ISLANDS",
	"European Russia":  "EUROPEAN RUSSIA",
	"Asiatic Russia":   "ASIATIC RUSSIA",
	"Kaliningrad":      "KALININGRAD",
	"Sov Mil Order of Malta": "SOVEREIGN MILITARY ORDER OF MALTA",
	"St. Kitts & Nevis":      "ST. KITTS AND NEVIS",
	"St. Vincent":            "ST. VINCENT",
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	parenthetic = regexp.MustCompile(`\([^)]*\)`)
)

// NormalizeName canonicalizes an entity name for cross-source matching:
// uppercase, parenthetical qualifiers removed, whitespace collapsed.
func NormalizeName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = parenthetic.ReplaceAllString(n, "")
	n = spaceRun.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// lotwName returns the normalized LoTW-side name for a CTY entity name,
// applying the override table first.
func lotwName(ctyName string) string {
	if mapped, ok := ctyToLoTW[ctyName]; ok {
		return NormalizeName(mapped)
	}
	return NormalizeName(ctyName)
}
