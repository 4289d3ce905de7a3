// Package paramtext parses the parameter line the host editor renders:
//
//	[TYPE] ID - NAME: DESCRIPTION
//
// where TYPE is a bracketed module tag, ID is a decimal integer, and
// NAME/DESCRIPTION are free text. Name and description are optional.
// The package performs no I/O.
package paramtext

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tunehub/paramlens/internal/models"
)

var numericPrefixRe = regexp.MustCompile(`^(\d+)`)

// Param is the structured identity extracted from one parameter line.
// ID may be empty when the token after the type tag carried no digits;
// callers must handle that partial result.
type Param struct {
	Type        models.ModuleType `json:"type"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
}

// Key returns the natural key for this parameter.
func (p Param) Key() models.ParamKey {
	return models.ParamKey{ModuleType: p.Type, ParamID: p.ID}
}

// HasMarker reports whether text starts with a recognized module marker
// such as "[ECM]" or "[TCM]". The detector uses this as the cheap
// grammar-prefix check before attempting a full parse.
func HasMarker(text string) bool {
	if !strings.HasPrefix(text, "[") {
		return false
	}
	end := strings.IndexByte(text, ']')
	if end < 0 {
		return false
	}
	_, err := models.ParseModuleType(text[1:end])
	return err == nil
}

// Parse extracts the structured parameter identity from raw text.
//
// The remainder after the id token is split once on ':' into name and
// description; without a colon the whole remainder is the name. A
// single leading "- " or "-" on the name is stripped. A non-numeric id
// token degrades to its longest numeric prefix; with no digits at all
// the result carries an empty ID but still reports the type.
func Parse(raw string) (*Param, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("paramtext: empty text")
	}

	fields := strings.Fields(text)
	header := fields[0]
	if !strings.HasPrefix(header, "[") || !strings.HasSuffix(header, "]") {
		return nil, fmt.Errorf("paramtext: no module marker in %q", header)
	}

	mt, err := models.ParseModuleType(strings.Trim(header, "[]"))
	if err != nil {
		return nil, fmt.Errorf("paramtext: %w", err)
	}

	p := &Param{Type: mt}
	if len(fields) < 2 {
		return p, nil
	}

	if m := numericPrefixRe.FindString(fields[1]); m != "" {
		p.ID = m
	}

	// Everything after the id token, preserving its internal spacing.
	rest := text[len(header):]
	rest = strings.TrimLeft(rest, " \t")
	rest = strings.TrimPrefix(rest, fields[1])
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return p, nil
	}

	name := rest
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		name = rest[:i]
		p.Description = strings.TrimSpace(rest[i+1:])
	}
	p.Name = strings.TrimSpace(stripDash(name))
	return p, nil
}

// stripDash removes one leading "- " or "-" from a name segment.
func stripDash(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "- ") {
		return s[2:]
	}
	if strings.HasPrefix(s, "-") {
		return s[1:]
	}
	return s
}

// TypeFromText infers a module type from arbitrary parameter text when
// no bracket tag parsed. Known controller names anywhere in the text
// win; everything else defaults to ECM.
func TypeFromText(text string) models.ModuleType {
	upper := strings.ToUpper(text)
	for _, mt := range []models.ModuleType{models.ModuleTCM, models.ModuleBCM, models.ModulePCM, models.ModuleICM} {
		if strings.Contains(upper, string(mt)) {
			return mt
		}
	}
	return models.ModuleECM
}
