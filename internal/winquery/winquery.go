// Package winquery abstracts the native window-tree queries the locator
// and detector need: enumerating top-level windows, walking children,
// and reading titles, class names, and control text. Implementations
// back this with the platform's window APIs, an in-memory tree for
// tests, or a snapshot file for development without the host editor.
package winquery

import "errors"

// Handle is an opaque reference to one window or control. Handles are
// ephemeral: they carry no identity beyond the provider that issued
// them and must be revalidated with IsValid before each use.
type Handle uint64

// None is the zero Handle, returned when discovery finds nothing.
const None Handle = 0

// ErrInvalidHandle is returned by queries against a handle that no
// longer refers to a live window.
var ErrInvalidHandle = errors.New("winquery: invalid handle")

// Provider answers window-tree queries. All methods are safe for
// concurrent use. Errors are transient by contract: callers retry the
// whole discovery on the next cycle rather than inspecting them.
type Provider interface {
	// TopLevel enumerates all top-level windows in the provider's
	// native order.
	TopLevel() ([]Handle, error)
	// Children enumerates the direct children of h.
	Children(h Handle) ([]Handle, error)
	// Title returns the window title of h.
	Title(h Handle) (string, error)
	// ClassName returns the window class of h.
	ClassName(h Handle) (string, error)
	// Text returns the current text content of h.
	Text(h Handle) (string, error)
	// IsValid reports whether h still refers to a live window.
	IsValid(h Handle) bool
}
