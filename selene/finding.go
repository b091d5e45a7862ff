package selene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Severity is the severity tag selene attaches to every finding.
type Severity string

const (
	SeverityBug     Severity = "Bug"
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
	SeverityNote    Severity = "Note"
	SeverityHelp    Severity = "Help"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityBug, SeverityError, SeverityWarning, SeverityNote, SeverityHelp:
		return true
	}
	return false
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return fmt.Errorf("%w: empty severity", ErrMalformedOutput)
	}
	if !Severity(raw).valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
	}
	*s = Severity(raw)
	return nil
}

// Span is a zero-based source range, already in LSP coordinates.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

func (s Span) valid() bool {
	return s.StartLine >= 0 && s.StartColumn >= 0 && s.EndLine >= 0 && s.EndColumn >= 0
}

type Label struct {
	Span Span `json:"span"`
}

// Finding is one record of selene's Json display style.
type Finding struct {
	Severity     Severity `json:"severity"`
	Code         string   `json:"code,omitempty"`
	Message      string   `json:"message"`
	PrimaryLabel *Label   `json:"primary_label"`
	Notes        []string `json:"notes"`
}

// record is the wire form of a Finding. Pointers tell missing fields apart
// from empty ones.
type record struct {
	Severity     *Severity `json:"severity"`
	Code         string    `json:"code,omitempty"`
	Message      *string   `json:"message"`
	PrimaryLabel *Label    `json:"primary_label"`
	Notes        *[]string `json:"notes"`
}

func (r record) finding() (Finding, error) {
	switch {
	case r.Severity == nil || *r.Severity == "":
		return Finding{}, errors.New("missing severity")
	case r.Message == nil:
		return Finding{}, errors.New("missing message")
	case r.PrimaryLabel == nil:
		return Finding{}, errors.New("missing primary_label")
	case r.Notes == nil:
		return Finding{}, errors.New("missing notes")
	case !r.PrimaryLabel.Span.valid():
		return Finding{}, fmt.Errorf("negative span %+v", r.PrimaryLabel.Span)
	}
	return Finding{
		Severity:     *r.Severity,
		Code:         r.Code,
		Message:      *r.Message,
		PrimaryLabel: r.PrimaryLabel,
		Notes:        *r.Notes,
	}, nil
}

// ParseOutput decodes selene's line-delimited output. A single bad line
// fails the whole run.
func ParseOutput(out []byte) ([]Finding, error) {
	findings := []Finding{}
	for idx, line := range bytes.Split(out, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			if errors.Is(err, ErrUnknownSeverity) || errors.Is(err, ErrMalformedOutput) {
				return nil, fmt.Errorf("line %d: %w", idx+1, err)
			}
			return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedOutput, idx+1, err)
		}
		f, err := r.finding()
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedOutput, idx+1, err)
		}

		findings = append(findings, f)
	}
	return findings, nil
}
