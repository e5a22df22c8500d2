package ctydb

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dxwatch/pkg/model"
)

// FormatError reports a malformed country database record. The load that
// produced it is aborted as a whole; no partial database is ever published.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return model.ErrFormat
}

// Group is one entity together with its match tokens
type Group struct {
	Entity model.Entity
	Rules  []model.PrefixRule
}

// Parse reads the CTY.DAT country database format.
//
// Each entity is a header line of eight colon-separated fields
// (name, CQ zone, ITU zone, continent, latitude, longitude, UTC offset,
// primary prefix) followed by a comma-separated token list terminated by a
// semicolon. The token list may span multiple physical lines. A token is a
// bare prefix, an exact callsign marked with a leading '=', and may carry a
// CQ zone override in parentheses, an ITU zone override in brackets, and
// coordinate or continent overrides in angle or curly brackets (ignored).
func Parse(r io.Reader) ([]Group, error) {
	var groups []Group
	var current *Group
	lineNo := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			continue
		}

		if isHeaderLine(line) {
			if current != nil {
				return nil, &FormatError{Line: lineNo, Reason: "entity header before previous token list was terminated"}
			}
			entity, err := parseHeader(line, lineNo)
			if err != nil {
				return nil, err
			}
			current = &Group{Entity: entity}
			continue
		}

		if current == nil {
			return nil, &FormatError{Line: lineNo, Reason: "token list outside an entity group"}
		}

		body := strings.TrimSpace(line)
		terminated := strings.HasSuffix(body, ";")
		body = strings.TrimSuffix(body, ";")

		for _, tok := range strings.Split(body, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			rule, err := parseToken(tok, lineNo)
			if err != nil {
				return nil, err
			}
			current.Rules = append(current.Rules, rule)
		}

		if terminated {
			if len(current.Rules) == 0 {
				return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("entity %q has no match tokens", current.Entity.Name)}
			}
			groups = append(groups, *current)
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read country database: %w", err)
	}
	if current != nil {
		return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("unterminated token list for entity %q", current.Entity.Name)}
	}

	return groups, nil
}

// isHeaderLine reports whether a line is an entity header. Headers start in
// column one, carry at least seven colons and end with one; token lists are
// indented.
func isHeaderLine(line string) bool {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	return strings.Count(line, ":") >= 7 && strings.HasSuffix(strings.TrimSpace(line), ":")
}

func parseHeader(line string, lineNo int) (model.Entity, error) {
	parts := strings.Split(line, ":")
	if len(parts) < 8 {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: "entity header has fewer than eight fields"}
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: "entity header has empty name"}
	}

	cq, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("invalid CQ zone %q", strings.TrimSpace(parts[1]))}
	}
	itu, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("invalid ITU zone %q", strings.TrimSpace(parts[2]))}
	}

	continent := strings.TrimSpace(parts[3])

	offset, err := strconv.ParseFloat(strings.TrimSpace(parts[6]), 64)
	if err != nil {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("invalid UTC offset %q", strings.TrimSpace(parts[6]))}
	}

	primary := strings.TrimSpace(parts[7])
	deleted := false
	if strings.HasPrefix(primary, "*") {
		deleted = true
		primary = primary[1:]
	}
	if primary == "" {
		return model.Entity{}, &FormatError{Line: lineNo, Reason: "entity header has empty primary prefix"}
	}

	return model.Entity{
		Name:          name,
		PrimaryPrefix: strings.ToUpper(primary),
		Continent:     continent,
		CQZone:        cq,
		ITUZone:       itu,
		UTCOffset:     offset,
		Deleted:       deleted,
	}, nil
}

// parseToken parses one match token. Overrides may appear in any order
// after the base text: (cq) [itu] <lat/lon> {continent} ~offset~. Only the
// zone overrides are kept; the rest are validated for balance and dropped.
func parseToken(tok string, lineNo int) (model.PrefixRule, error) {
	rule := model.PrefixRule{}

	body := tok
	if strings.HasPrefix(body, "=") {
		rule.Exact = true
		body = body[1:]
	}

	var base strings.Builder
	i := 0
	for i < len(body) {
		c := body[i]
		switch c {
		case '(', '[', '<', '{', '~':
			closer := map[byte]byte{'(': ')', '[': ']', '<': '>', '{': '}', '~': '~'}[c]
			end := strings.IndexByte(body[i+1:], closer)
			if end < 0 {
				return model.PrefixRule{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("token %q has unclosed %q", tok, string(c))}
			}
			inner := body[i+1 : i+1+end]
			switch c {
			case '(':
				zone, err := strconv.Atoi(inner)
				if err != nil {
					return model.PrefixRule{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("token %q has non-numeric CQ override", tok)}
				}
				rule.CQOverride = zone
			case '[':
				zone, err := strconv.Atoi(inner)
				if err != nil {
					return model.PrefixRule{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("token %q has non-numeric ITU override", tok)}
				}
				rule.ITUOverride = zone
			}
			i += end + 2
		default:
			base.WriteByte(c)
			i++
		}
	}

	if base.Len() == 0 {
		return model.PrefixRule{}, &FormatError{Line: lineNo, Reason: fmt.Sprintf("token %q has no match text", tok)}
	}

	rule.Match = strings.ToUpper(base.String())
	return rule, nil
}
