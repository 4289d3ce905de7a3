package winquery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SnapWindow is one window in a YAML snapshot file.
type SnapWindow struct {
	Title    string       `yaml:"title,omitempty"`
	Class    string       `yaml:"class,omitempty"`
	Text     string       `yaml:"text,omitempty"`
	Children []SnapWindow `yaml:"children,omitempty"`
}

type snapFile struct {
	Windows []SnapWindow `yaml:"windows"`
}

// SnapProvider serves window queries from a YAML snapshot on disk and
// hot-reloads it when the file changes. It exists so the full
// locator/detector pipeline can run without the host editor present:
// editing the snapshot stands in for the editor changing its display.
//
// Handles are never reused across reloads, so a handle obtained before
// a reload correctly reports invalid afterwards, the same way a
// recreated native window would.
type SnapProvider struct {
	path string
	cur  atomic.Pointer[Tree]
}

// NewSnapProvider loads the snapshot at path.
func NewSnapProvider(path string) (*SnapProvider, error) {
	p := &SnapProvider{path: path}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SnapProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("winquery: read snapshot: %w", err)
	}
	var f snapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("winquery: parse snapshot %s: %w", p.path, err)
	}

	start := Handle(1)
	if prev := p.cur.Load(); prev != nil {
		start = prev.NextHandle()
	}
	t := NewTreeFrom(start)
	for _, w := range f.Windows {
		h := t.AddTopLevel(w.Title)
		addSnapChildren(t, h, w.Children)
	}
	p.cur.Store(t)
	return nil
}

func addSnapChildren(t *Tree, parent Handle, children []SnapWindow) {
	for _, c := range children {
		h := t.AddChild(parent, c.Class, c.Text)
		addSnapChildren(t, h, c.Children)
	}
}

// Watch reloads the snapshot whenever the file is rewritten, until ctx
// is cancelled. A snapshot that fails to parse keeps the previous tree.
func (p *SnapProvider) Watch(ctx context.Context, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: editors replace files by
	// rename and the watch would die with the old inode.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		return err
	}

	logger.Info("snapshot watch started", slog.String("path", p.path))

	// Debounce bursts of write events from a single save.
	var pending <-chan time.Time
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("snapshot watch stopped")
			return nil

		case <-pending:
			if err := p.reload(); err != nil {
				logger.Warn("snapshot reload failed", slog.String("error", err.Error()))
			} else {
				logger.Debug("snapshot reloaded", slog.String("path", p.path))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(100 * time.Millisecond)
				pending = timer.C
			} else {
				timer.Reset(100 * time.Millisecond)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("snapshot watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (p *SnapProvider) tree() *Tree { return p.cur.Load() }

// TopLevel implements Provider.
func (p *SnapProvider) TopLevel() ([]Handle, error) { return p.tree().TopLevel() }

// Children implements Provider.
func (p *SnapProvider) Children(h Handle) ([]Handle, error) { return p.tree().Children(h) }

// Title implements Provider.
func (p *SnapProvider) Title(h Handle) (string, error) { return p.tree().Title(h) }

// ClassName implements Provider.
func (p *SnapProvider) ClassName(h Handle) (string, error) { return p.tree().ClassName(h) }

// Text implements Provider.
func (p *SnapProvider) Text(h Handle) (string, error) { return p.tree().Text(h) }

// IsValid implements Provider.
func (p *SnapProvider) IsValid(h Handle) bool { return p.tree().IsValid(h) }

var _ Provider = (*SnapProvider)(nil)
