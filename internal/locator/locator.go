// Package locator discovers the host editor's parameter-display control
// without hard-coded identifiers: it scans top-level windows for the
// host title marker, then walks the control tree looking for edit-class
// controls, promoting any whose text already carries a module marker.
package locator

import (
	"log/slog"
	"strings"

	"github.com/tunehub/paramlens/internal/paramtext"
	"github.com/tunehub/paramlens/internal/winquery"
)

// DefaultMaxDepth bounds control enumeration against pathological
// window trees.
const DefaultMaxDepth = 5

// FindHostWindow returns the first top-level window whose title
// contains marker, in the provider's enumeration order, or None when no
// window matches or enumeration fails. Discovery failure is not an
// error here: the caller retries on its next cycle.
func FindHostWindow(p winquery.Provider, marker string, logger *slog.Logger) winquery.Handle {
	tops, err := p.TopLevel()
	if err != nil {
		logger.Debug("top-level enumeration failed", slog.String("error", err.Error()))
		return winquery.None
	}
	for _, h := range tops {
		title, err := p.Title(h)
		if err != nil {
			continue
		}
		if title != "" && strings.Contains(title, marker) {
			return h
		}
	}
	return winquery.None
}

// FindCandidateControls enumerates descendants of root up to maxDepth
// levels and returns the edit-class controls found, most likely first:
// any control whose text starts with a recognized module marker is
// moved to the front. Handles reachable through multiple enumeration
// paths are reported once. Controls whose class does not contain "edit"
// are never returned.
func FindCandidateControls(p winquery.Provider, root winquery.Handle, maxDepth int) []winquery.Handle {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	seen := make(map[winquery.Handle]struct{})
	var edits []winquery.Handle
	var promoted []winquery.Handle

	var walk func(h winquery.Handle, depth int)
	walk = func(h winquery.Handle, depth int) {
		if depth > maxDepth {
			return
		}
		children, err := p.Children(h)
		if err != nil {
			return
		}
		for _, c := range children {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}

			if class, err := p.ClassName(c); err == nil && strings.Contains(strings.ToLower(class), "edit") {
				if text, err := p.Text(c); err == nil && paramtext.HasMarker(text) {
					promoted = append(promoted, c)
				} else {
					edits = append(edits, c)
				}
			}
			walk(c, depth+1)
		}
	}
	walk(root, 1)

	return append(promoted, edits...)
}
