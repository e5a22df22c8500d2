package challenge

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Credit is one DXCC award credit extracted from a confirmation-log export
type Credit struct {
	DXCC    int    // ARRL entity number
	Band    string // Credited band, normalized
	Mode    string
	Country string // Entity name as the export spells it
}

// ParseADIF extracts award credits from a LoTW DXCC-credit ADIF export.
// Records are <eor>-terminated; fields use the <name:length>value form.
// Records without a DXCC field are not credit records and are skipped.
func ParseADIF(r io.Reader) ([]Credit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read ADIF: %w", err)
	}

	var credits []Credit
	for _, record := range strings.Split(strings.ToLower(string(data)), "<eor>") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		dxccText := adifField(record, "dxcc")
		if dxccText == "" {
			continue
		}
		dxcc, err := strconv.Atoi(dxccText)
		if err != nil {
			continue
		}

		credits = append(credits, Credit{
			DXCC:    dxcc,
			Band:    NormalizeBand(adifField(record, "band")),
			Mode:    adifField(record, "mode"),
			Country: adifField(record, "country"),
		})
	}

	return credits, nil
}

// adifField extracts one <name:length>value field from a lowercased record
func adifField(record, name string) string {
	tag := "<" + name + ":"
	idx := strings.Index(record, tag)
	if idx == -1 {
		return ""
	}

	end := strings.IndexByte(record[idx:], '>')
	if end == -1 {
		return ""
	}
	end += idx

	length, err := strconv.Atoi(record[idx+len(tag) : end])
	if err != nil || length < 0 {
		return ""
	}

	start := end + 1
	if start+length > len(record) {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(record[start : start+length]))
}
