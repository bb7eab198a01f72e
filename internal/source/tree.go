package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/san-kum/lifeviz/internal/capture"
	"github.com/san-kum/lifeviz/internal/life"
)

var (
	ErrNotFound = errors.New("source: node not found")
	ErrNotGroup = errors.New("source: parent is not a group")
	ErrCycle    = errors.New("source: cannot move a group into itself")
	ErrLeafKind = errors.New("source: group kind used for a leaf")
)

// Tree owns the source forest and composites it every tick.
type Tree struct {
	mu    sync.Mutex
	ctx   context.Context
	log   *slog.Logger
	roots []*Node
	byID  map[uuid.UUID]*Node

	aspect     float64
	aspectLock bool
	onAspect   func(float64)
	policies   map[capture.Kind]capture.Policy

	out compositeBuffers
}

type Option func(*Tree)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// WithAspectHandler registers fn to be called, outside the tree lock,
// whenever the derived aspect ratio changes.
func WithAspectHandler(fn func(aspect float64)) Option {
	return func(t *Tree) { t.onAspect = fn }
}

// WithPolicy overrides the grace policy for one capture kind.
func WithPolicy(k capture.Kind, p capture.Policy) Option {
	return func(t *Tree) { t.policies[k] = p }
}

// NewTree returns an empty tree. Pipelines of added leaves run until they
// are removed, the tree is closed, or ctx is cancelled.
func NewTree(ctx context.Context, opts ...Option) *Tree {
	t := &Tree{
		ctx:      ctx,
		byID:     make(map[uuid.UUID]*Node),
		aspect:   life.DefaultAspect,
		policies: make(map[capture.Kind]capture.Policy),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.log = t.log.With("component", "source")
	return t
}

// Add inserts a leaf that captures through acq under parent (uuid.Nil for
// the top level) at index; an out-of-range index appends. The leaf's
// pipeline starts immediately. extra options apply after the tree's own.
func (t *Tree) Add(parent uuid.UUID, index int, kind Kind, name, key string, acq capture.Acquirer, s Settings, extra ...capture.Option) (uuid.UUID, error) {
	ck, ok := kind.Capture()
	if !ok {
		return uuid.Nil, ErrLeafKind
	}

	n := &Node{ID: uuid.New(), Kind: kind, Name: name, Key: key, settings: s.sanitized(), acq: acq}
	opts := []capture.Option{capture.WithLogger(t.log)}
	if pol, ok := t.policies[ck]; ok {
		opts = append(opts, capture.WithPolicy(pol))
	}
	opts = append(opts, extra...)
	n.pipeline = capture.NewPipeline(ck, name, acq, opts...)

	aspect, changed, err := t.insert(parent, index, n)
	if err != nil {
		return uuid.Nil, err
	}
	n.pipeline.Start(t.ctx)
	t.log.Info("source added", "id", n.ID, "name", name, "kind", kind.String())
	t.notify(aspect, changed)
	return n.ID, nil
}

// AddGroup inserts an empty group.
func (t *Tree) AddGroup(parent uuid.UUID, index int, name string, s Settings) (uuid.UUID, error) {
	n := &Node{ID: uuid.New(), Kind: KindGroup, Name: name, settings: s.sanitized()}
	aspect, changed, err := t.insert(parent, index, n)
	if err != nil {
		return uuid.Nil, err
	}
	t.notify(aspect, changed)
	return n.ID, nil
}

func (t *Tree) insert(parent uuid.UUID, index int, n *Node) (float64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list, owner, err := t.listLocked(parent)
	if err != nil {
		return 0, false, err
	}
	n.parent = owner
	t.setListLocked(owner, insertAt(list, index, n))
	t.byID[n.ID] = n
	aspect, changed := t.deriveAspectLocked()
	return aspect, changed, nil
}

// Move reparents id under parent at index.
func (t *Tree) Move(id, parent uuid.UUID, index int) error {
	t.mu.Lock()
	n, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	for p := t.byID[parent]; p != nil; p = p.parent {
		if p == n {
			t.mu.Unlock()
			return ErrCycle
		}
	}
	if _, _, err := t.listLocked(parent); err != nil {
		t.mu.Unlock()
		return err
	}

	t.detachLocked(n)
	list, owner, _ := t.listLocked(parent)
	n.parent = owner
	t.setListLocked(owner, insertAt(list, index, n))
	aspect, changed := t.deriveAspectLocked()
	t.mu.Unlock()

	t.notify(aspect, changed)
	return nil
}

// Remove detaches id and its subtree and stops their pipelines before
// returning.
func (t *Tree) Remove(id uuid.UUID) error {
	t.mu.Lock()
	n, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	t.detachLocked(n)
	n.walk(0, func(c *Node, _ int) bool {
		delete(t.byID, c.ID)
		return true
	})
	aspect, changed := t.deriveAspectLocked()
	t.mu.Unlock()

	n.stop()
	t.log.Info("source removed", "id", n.ID, "name", n.Name)
	t.notify(aspect, changed)
	return nil
}

// Prune removes every leaf whose pipeline has expired and returns their
// names.
func (t *Tree) Prune() []string {
	t.mu.Lock()
	var dead []*Node
	for _, r := range t.roots {
		r.walk(0, func(n *Node, _ int) bool {
			if n.pipeline != nil && n.pipeline.Expired() {
				dead = append(dead, n)
			}
			return true
		})
	}
	for _, n := range dead {
		t.detachLocked(n)
		delete(t.byID, n.ID)
	}
	aspect, changed := t.deriveAspectLocked()
	t.mu.Unlock()

	names := make([]string, 0, len(dead))
	for _, n := range dead {
		n.stop()
		t.log.Warn("source lost, removing", "id", n.ID, "name", n.Name, "kind", n.Kind.String(), "error", n.pipeline.Err())
		names = append(names, n.Name)
	}
	t.notify(aspect, changed)
	return names
}

// Update replaces the settings of id.
func (t *Tree) Update(id uuid.UUID, s Settings) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	n.settings = s.sanitized()
	return nil
}

// Settings returns the settings of id.
func (t *Tree) Settings(id uuid.UUID) (Settings, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return n.settings, nil
}

// Pipeline returns the capture pipeline of leaf id.
func (t *Tree) Pipeline(id uuid.UUID) (*capture.Pipeline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok || n.pipeline == nil {
		return nil, false
	}
	return n.pipeline, true
}

// Feed returns the push feed of a window-style leaf.
func (t *Tree) Feed(id uuid.UUID) (*capture.Feed, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	f, ok := n.acq.(*capture.Feed)
	return f, ok
}

// List returns every node depth first, parents before children.
func (t *Tree) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Info
	for _, r := range t.roots {
		r.walk(0, func(n *Node, depth int) bool {
			out = append(out, n.info(depth))
			return true
		})
	}
	return out
}

// Len is the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// Aspect returns the current global aspect ratio (columns/rows).
func (t *Tree) Aspect() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aspect
}

// SetAspectLock pins the aspect to ratio while locked. Unlocking re-derives
// it from the primary source.
func (t *Tree) SetAspectLock(locked bool, ratio float64) {
	t.mu.Lock()
	t.aspectLock = locked
	changed := false
	if locked {
		ratio = life.SanitizeAspect(ratio)
		changed = ratio != t.aspect
		t.aspect = ratio
	} else {
		_, changed = t.deriveAspectLocked()
	}
	aspect := t.aspect
	t.mu.Unlock()
	t.notify(aspect, changed)
}

// Close removes every node, stopping all pipelines.
func (t *Tree) Close() {
	t.mu.Lock()
	roots := t.roots
	t.roots = nil
	t.byID = make(map[uuid.UUID]*Node)
	t.mu.Unlock()

	for _, r := range roots {
		r.stop()
	}
}

// deriveAspectLocked recomputes the aspect from the primary source, the
// top-level node at index 0. Until it has a frame the default aspect
// applies.
func (t *Tree) deriveAspectLocked() (float64, bool) {
	if t.aspectLock {
		return t.aspect, false
	}
	aspect := life.DefaultAspect
	if len(t.roots) > 0 {
		if w, h, ok := t.roots[0].nativeSize(); ok && h > 0 {
			aspect = float64(w) / float64(h)
		}
	}
	if aspect == t.aspect {
		return aspect, false
	}
	t.aspect = aspect
	return aspect, true
}

func (t *Tree) notify(aspect float64, changed bool) {
	if !changed {
		return
	}
	t.log.Info("aspect changed", "aspect", aspect)
	if t.onAspect != nil {
		t.onAspect(aspect)
	}
}

func (t *Tree) listLocked(parent uuid.UUID) ([]*Node, *Node, error) {
	if parent == uuid.Nil {
		return t.roots, nil, nil
	}
	p, ok := t.byID[parent]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if !p.IsGroup() {
		return nil, nil, ErrNotGroup
	}
	return p.children, p, nil
}

func (t *Tree) setListLocked(owner *Node, list []*Node) {
	if owner == nil {
		t.roots = list
		return
	}
	owner.children = list
}

func (t *Tree) detachLocked(n *Node) {
	list := t.roots
	if n.parent != nil {
		list = n.parent.children
	}
	for i, c := range list {
		if c == n {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	t.setListLocked(n.parent, list)
	n.parent = nil
}

func insertAt(list []*Node, index int, n *Node) []*Node {
	if index < 0 || index >= len(list) {
		return append(list, n)
	}
	list = append(list, nil)
	copy(list[index+1:], list[index:])
	list[index] = n
	return list
}
