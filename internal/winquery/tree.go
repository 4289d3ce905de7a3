package winquery

import "sync"

type node struct {
	title    string
	class    string
	text     string
	children []Handle
}

// Tree is an in-memory Provider. Tests and the snapshot provider build
// window hierarchies with it; a child may be linked under more than one
// parent, so enumeration can visit the same handle twice the way native
// child enumeration does.
type Tree struct {
	mu    sync.RWMutex
	nodes map[Handle]*node
	top   []Handle
	next  Handle
}

// NewTree returns an empty window tree.
func NewTree() *Tree {
	return NewTreeFrom(1)
}

// NewTreeFrom returns an empty tree whose first handle is start. The
// snapshot provider uses this so handles never collide across reloads.
func NewTreeFrom(start Handle) *Tree {
	if start == None {
		start = 1
	}
	return &Tree{nodes: make(map[Handle]*node), next: start}
}

// NextHandle returns the handle the next allocation would get.
func (t *Tree) NextHandle() Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next
}

// AddTopLevel creates a top-level window with the given title.
func (t *Tree) AddTopLevel(title string) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.alloc(&node{title: title})
	t.top = append(t.top, h)
	return h
}

// AddChild creates a control under parent with the given class and text.
func (t *Tree) AddChild(parent Handle, class, text string) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.alloc(&node{class: class, text: text})
	if p, ok := t.nodes[parent]; ok {
		p.children = append(p.children, h)
	}
	return h
}

// Link adds an existing handle as a child of parent, creating a second
// enumeration path to it.
func (t *Tree) Link(parent, child Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.nodes[parent]; ok {
		p.children = append(p.children, child)
	}
}

// SetText replaces the text of h.
func (t *Tree) SetText(h Handle, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[h]; ok {
		n.text = text
	}
}

// Destroy invalidates h. Subsequent queries against it fail and IsValid
// reports false, simulating the host window going away.
func (t *Tree) Destroy(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, h)
	out := t.top[:0]
	for _, th := range t.top {
		if th != h {
			out = append(out, th)
		}
	}
	t.top = out
}

func (t *Tree) alloc(n *node) Handle {
	h := t.next
	t.next++
	t.nodes[h] = n
	return h
}

// TopLevel implements Provider.
func (t *Tree) TopLevel() ([]Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Handle, len(t.top))
	copy(out, t.top)
	return out, nil
}

// Children implements Provider.
func (t *Tree) Children(h Handle) ([]Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[h]
	if !ok {
		return nil, ErrInvalidHandle
	}
	out := make([]Handle, len(n.children))
	copy(out, n.children)
	return out, nil
}

// Title implements Provider.
func (t *Tree) Title(h Handle) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[h]
	if !ok {
		return "", ErrInvalidHandle
	}
	return n.title, nil
}

// ClassName implements Provider.
func (t *Tree) ClassName(h Handle) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[h]
	if !ok {
		return "", ErrInvalidHandle
	}
	return n.class, nil
}

// Text implements Provider.
func (t *Tree) Text(h Handle) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[h]
	if !ok {
		return "", ErrInvalidHandle
	}
	return n.text, nil
}

// IsValid implements Provider.
func (t *Tree) IsValid(h Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[h]
	return ok
}

// Verify *Tree satisfies Provider at compile time.
var _ Provider = (*Tree)(nil)
