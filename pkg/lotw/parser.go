package lotw

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"dxwatch/pkg/model"
)

// ParseActivity reads the LoTW user-activity CSV: one record per line,
// callsign followed by the last upload date (YYYY-MM-DD) and optionally a
// time (HH:MM:SS). The delimiter is a comma or a semicolon depending on
// the mirror; a header row may or may not be present.
func ParseActivity(r io.Reader) ([]model.ActivityRecord, error) {
	var records []model.ActivityRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	delimiter := ""
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if delimiter == "" {
			if strings.Contains(line, ";") {
				delimiter = ";"
			} else {
				delimiter = ","
			}
		}

		parts := strings.Split(line, delimiter)
		if len(parts) < 2 {
			if first {
				first = false
				continue // tolerate a one-column header
			}
			return nil, fmt.Errorf("%w: record %q has fewer than two fields", model.ErrFormat, line)
		}

		callsign := strings.ToUpper(strings.TrimSpace(parts[0]))
		ts, err := parseTimestamp(strings.TrimSpace(parts[1]), parts[2:])
		if err != nil {
			if first {
				// Header row: date column doesn't parse as a date
				first = false
				continue
			}
			return nil, fmt.Errorf("%w: record %q: %v", model.ErrFormat, line, err)
		}
		first = false

		if callsign == "" {
			continue
		}
		records = append(records, model.ActivityRecord{Callsign: callsign, LastUpload: ts})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read activity data: %w", err)
	}

	return records, nil
}

func parseTimestamp(date string, rest []string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, err
	}
	if len(rest) > 0 {
		if clock, err := time.Parse("15:04:05", strings.TrimSpace(rest[0])); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC), nil
		}
	}
	return day, nil
}
