package challenge

import (
	"strings"
	"testing"
)

const sampleADIF = `ARRL Logbook of the World DXCC Credit Report
<PROGRAMID:4>LoTW
<APP_LoTW_LASTQSL:10>2025-06-01
<eoh>

<CALL:4>W1AW <DXCC:3>291 <BAND:3>20M <MODE:3>FT8 <COUNTRY:24>UNITED STATES OF AMERICA <eor>
<CALL:5>3B8CF <DXCC:3>165 <BAND:3>40M <MODE:2>CW <COUNTRY:9>MAURITIUS <eor>
<CALL:4>TEST <BAND:3>20M <eor>
`

func TestParseADIF(t *testing.T) {
	credits, err := ParseADIF(strings.NewReader(sampleADIF))
	if err != nil {
		t.Fatalf("ParseADIF failed: %v", err)
	}

	// Header block and the record without a DXCC field are skipped
	if len(credits) != 2 {
		t.Fatalf("got %d credits, want 2", len(credits))
	}

	first := credits[0]
	if first.DXCC != 291 {
		t.Errorf("got DXCC %d, want 291", first.DXCC)
	}
	if first.Band != "20m" {
		t.Errorf("got band %q, want 20m (normalized)", first.Band)
	}
	if first.Mode != "FT8" {
		t.Errorf("got mode %q, want FT8", first.Mode)
	}
	if first.Country != "UNITED STATES OF AMERICA" {
		t.Errorf("got country %q, want UNITED STATES OF AMERICA", first.Country)
	}

	if credits[1].DXCC != 165 || credits[1].Band != "40m" {
		t.Errorf("got %+v, want DXCC 165 band 40m", credits[1])
	}
}

func TestADIFFieldLengthHonored(t *testing.T) {
	// The length prefix bounds the value even when more text follows
	record := strings.ToLower("<DXCC:3>291extra <eor>")
	if got := adifField(record, "dxcc"); got != "291" {
		t.Errorf("got %q, want 291", got)
	}
}

func TestADIFFieldTruncatedRecord(t *testing.T) {
	record := strings.ToLower("<DXCC:10>291")
	if got := adifField(record, "dxcc"); got != "" {
		t.Errorf("got %q, want empty for truncated field", got)
	}
}

func TestNormalizeBand(t *testing.T) {
	tests := []struct{ in, want string }{
		{"20M", "20m"},
		{"20m", "20m"},
		{"20", "20m"},
		{" 160M ", "160m"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeBand(tt.in); got != tt.want {
			t.Errorf("NormalizeBand(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
