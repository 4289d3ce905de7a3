// Package detector polls the host editor's parameter control and turns
// text changes into parsed parameter events.
package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tunehub/paramlens/internal/locator"
	"github.com/tunehub/paramlens/internal/paramtext"
	"github.com/tunehub/paramlens/internal/winquery"
)

// State is the detection state machine's current position.
type State string

const (
	// StateDisabled means detection is off and ticks are no-ops.
	StateDisabled State = "disabled"
	// StateSearching means discovery runs every tick until the
	// parameter control is found.
	StateSearching State = "searching"
	// StateTracking means a control is held and re-read every tick.
	StateTracking State = "tracking"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 100 * time.Millisecond

// Event is emitted when the tracked control's text genuinely changed
// and parsed as parameter text.
type Event struct {
	Raw   string           `json:"raw"`
	Param *paramtext.Param `json:"param"`
}

// EventCallback receives detection events. It runs on the detector's
// goroutine, so it must not block.
type EventCallback func(Event)

// Config tunes the detector.
type Config struct {
	// Marker is the substring identifying the host window title.
	Marker string
	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// MaxDepth bounds control enumeration. Defaults to locator.DefaultMaxDepth.
	MaxDepth int
}

// Status is a point-in-time snapshot for the status surface.
type Status struct {
	State      State            `json:"state"`
	Handle     winquery.Handle  `json:"handle,omitempty"`
	LastText   string           `json:"last_text,omitempty"`
	LastParam  *paramtext.Param `json:"last_param,omitempty"`
	LastChange time.Time        `json:"last_change,omitempty"`
}

// Detector owns the Disabled/Searching/Tracking state machine. All
// mutable state is guarded by mu; the tick loop is the only writer of
// the tracked handle and last-observed text.
type Detector struct {
	provider winquery.Provider
	cfg      Config
	logger   *slog.Logger
	cb       EventCallback

	mu         sync.Mutex
	state      State
	handle     winquery.Handle
	lastText   string
	lastParam  *paramtext.Param
	lastChange time.Time
}

// New creates a detector in the Disabled state.
func New(provider winquery.Provider, cfg Config, logger *slog.Logger, cb EventCallback) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = locator.DefaultMaxDepth
	}
	return &Detector{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		cb:       cb,
		state:    StateDisabled,
	}
}

// Run ticks until ctx is cancelled. A tick never propagates a provider
// failure: anything that goes wrong while tracking demotes the state to
// Searching and the next tick retries discovery.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("detector started", slog.Duration("interval", d.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("detector stopped")
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

// Enable turns detection on and immediately attempts discovery.
func (d *Detector) Enable() {
	d.mu.Lock()
	if d.state == StateDisabled {
		d.state = StateSearching
	}
	d.mu.Unlock()
	d.tick()
}

// Disable turns detection off. The tracked handle and last-observed
// text are dropped so a later Enable starts clean.
func (d *Detector) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateDisabled
	d.handle = winquery.None
	d.lastText = ""
	d.lastParam = nil
}

// Status returns a snapshot of the current detection state.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		State:      d.state,
		Handle:     d.handle,
		LastText:   d.lastText,
		LastParam:  d.lastParam,
		LastChange: d.lastChange,
	}
}

func (d *Detector) tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateDisabled:
		return
	case StateTracking:
		d.poll()
	case StateSearching:
		d.search()
	}
}

// poll re-validates the tracked handle and processes any text delta.
// Caller holds mu.
func (d *Detector) poll() {
	if !d.provider.IsValid(d.handle) {
		d.logger.Debug("tracked control gone, searching", slog.Uint64("handle", uint64(d.handle)))
		d.demote()
		return
	}
	text, err := d.provider.Text(d.handle)
	if err != nil {
		d.logger.Debug("text read failed, searching", slog.String("error", err.Error()))
		d.demote()
		return
	}
	if !paramtext.HasMarker(text) {
		d.logger.Debug("tracked control lost marker, searching")
		d.demote()
		return
	}
	d.observe(text)
}

// search runs discovery and, on success, promotes to Tracking and
// processes the control's current text. Caller holds mu.
func (d *Detector) search() {
	host := locator.FindHostWindow(d.provider, d.cfg.Marker, d.logger)
	if host == winquery.None {
		return
	}
	for _, c := range locator.FindCandidateControls(d.provider, host, d.cfg.MaxDepth) {
		text, err := d.provider.Text(c)
		if err != nil || !paramtext.HasMarker(text) {
			continue
		}
		d.handle = c
		d.state = StateTracking
		d.logger.Info("parameter control found", slog.Uint64("handle", uint64(c)))
		d.observe(text)
		return
	}
}

// observe records text and emits an event only on a genuine delta.
// Caller holds mu.
func (d *Detector) observe(text string) {
	if text == d.lastText {
		return
	}
	d.lastText = text
	d.lastChange = time.Now()

	param, err := paramtext.Parse(text)
	if err != nil {
		d.logger.Debug("parameter text did not parse", slog.String("error", err.Error()))
		d.lastParam = nil
		return
	}
	d.lastParam = param
	if d.cb != nil {
		d.cb(Event{Raw: text, Param: param})
	}
}

func (d *Detector) demote() {
	d.handle = winquery.None
	d.state = StateSearching
}
