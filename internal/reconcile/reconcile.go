// Package reconcile derives the old/new value pair for a contribution
// from whatever the submission actually carried. Extraction is a fixed
// ordered list of strategies; each runs only for the side (old or new)
// the earlier strategies left empty, and anything still unresolved
// defaults to the empty string. The free-text heuristics are
// best-effort by design: they produce a plausible pair or nothing.
package reconcile

import (
	"strings"

	"github.com/tunehub/paramlens/internal/models"
)

// Payload is the submitted annotation for one parameter. The old_/new_
// pairs are optional; when the submitter's client tracked the change
// itself they arrive pre-filled.
type Payload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Details     string `json:"details"`

	OldName        string `json:"old_name,omitempty"`
	NewName        string `json:"new_name,omitempty"`
	OldDescription string `json:"old_description,omitempty"`
	NewDescription string `json:"new_description,omitempty"`
	OldDetails     string `json:"old_details,omitempty"`
	NewDetails     string `json:"new_details,omitempty"`
}

// Strategy extracts candidate old/new values from a payload. An empty
// return for either side means the strategy had nothing to offer.
type Strategy interface {
	Name() string
	Extract(p Payload) (oldValue, newValue string)
}

// Strategies is the extraction order. First non-empty result per side
// wins. The details-blob heuristics run before the raw payload
// fallback so a details string like "Old Value: 10, New Value: 20"
// resolves to the values it names rather than to the blob itself.
var Strategies = []Strategy{
	explicitPairs{},
	markedValues{},
	changedFromTo{},
	positionalLines{},
	payloadFallback{},
}

// Resolve runs the strategy list and returns the old/new pair, each
// side independently taking the first non-empty extraction. Both
// returns are defined even when everything fails: empty strings, never
// absent.
func Resolve(p Payload) (oldValue, newValue string) {
	for _, s := range Strategies {
		if oldValue != "" && newValue != "" {
			break
		}
		o, n := s.Extract(p)
		if oldValue == "" {
			oldValue = o
		}
		if newValue == "" {
			newValue = n
		}
	}
	return oldValue, newValue
}

// Unchanged compares the submitted fields against the existing
// canonical record, whitespace-trimmed and field by field. Empty
// payload fields are not compared. A submission matching the canonical
// record on every tracked field it carries is a no-op.
func Unchanged(p Payload, existing *models.Parameter) bool {
	if existing == nil {
		return false
	}
	pairs := [][2]string{
		{p.Name, existing.Name},
		{p.Description, existing.Description},
		{p.Details, existing.Details},
	}
	for _, pair := range pairs {
		submitted := strings.TrimSpace(pair[0])
		if submitted == "" {
			continue
		}
		if submitted != strings.TrimSpace(pair[1]) {
			return false
		}
	}
	return true
}

// explicitPairs uses pre-filled new_/old_ field pairs, details winning
// over description winning over name.
type explicitPairs struct{}

func (explicitPairs) Name() string { return "explicit-pairs" }

func (explicitPairs) Extract(p Payload) (string, string) {
	switch {
	case p.NewDetails != "":
		return p.OldDetails, p.NewDetails
	case p.NewDescription != "":
		return p.OldDescription, p.NewDescription
	case p.NewName != "":
		return p.OldName, p.NewName
	}
	return "", ""
}

// payloadFallback derives the new value from the payload's own fields.
// It never produces an old value.
type payloadFallback struct{}

func (payloadFallback) Name() string { return "payload-fallback" }

func (payloadFallback) Extract(p Payload) (string, string) {
	switch {
	case p.Details != "":
		return "", p.Details
	case p.Description != "":
		return "", p.Description
	case p.Name != "":
		return "", p.Name
	}
	return "", ""
}

// markedValues handles "Old Value: X, New Value: Y" in the details blob.
type markedValues struct{}

func (markedValues) Name() string { return "marked-values" }

func (markedValues) Extract(p Payload) (string, string) {
	details := p.Details
	if !strings.Contains(details, "Old Value:") || !strings.Contains(details, "New Value:") {
		return "", ""
	}
	afterOld := strings.SplitN(details, "Old Value:", 2)[1]
	parts := strings.SplitN(afterOld, "New Value:", 2)
	if len(parts) != 2 {
		return "", ""
	}
	oldValue := strings.TrimSuffix(strings.TrimSpace(parts[0]), ",")
	return strings.TrimSpace(oldValue), strings.TrimSpace(parts[1])
}

// changedFromTo handles "Changed from X to Y".
type changedFromTo struct{}

func (changedFromTo) Name() string { return "changed-from-to" }

func (changedFromTo) Extract(p Payload) (string, string) {
	details := p.Details
	if !strings.Contains(details, "Changed from") {
		return "", ""
	}
	rest := strings.SplitN(details, "Changed from", 2)[1]
	parts := strings.SplitN(rest, " to ", 2)
	if len(parts) != 2 {
		return "", ""
	}
	oldValue := strings.TrimSuffix(strings.TrimSpace(parts[0]), ",")
	return strings.TrimSpace(oldValue), strings.TrimSpace(parts[1])
}

// positionalLines is the lowest-confidence heuristic: after any line
// containing ':', the next non-empty line is taken as old and the line
// after as new, but only when that third line itself carries no ':'.
type positionalLines struct{}

func (positionalLines) Name() string { return "positional-lines" }

func (positionalLines) Extract(p Payload) (string, string) {
	if !strings.Contains(p.Details, ":") {
		return "", ""
	}
	lines := strings.Split(p.Details, "\n")
	for i, line := range lines {
		if !strings.Contains(line, ":") || i+2 >= len(lines) {
			continue
		}
		oldValue := strings.TrimSpace(lines[i+1])
		newValue := strings.TrimSpace(lines[i+2])
		if oldValue == "" || newValue == "" || strings.Contains(lines[i+2], ":") {
			continue
		}
		return oldValue, newValue
	}
	return "", ""
}
