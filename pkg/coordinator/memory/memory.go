// Package memory is a single-process, in-memory reference implementation
// of coordinator.Coordinator, used by unit and integration tests that
// exercise the lock, metadata store, and segment reader/writer without a
// real coordinator deployment.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/dlogio/dlog/pkg/coordinator"
)

type node struct {
	data     []byte
	version  int64
	mode     coordinator.CreateMode
	children map[string]struct{}
}

// Coordinator is the in-memory backend. The zero value is not usable; use
// New.
type Coordinator struct {
	mu       sync.Mutex
	nodes    map[string]*node
	watches  map[string][]func(coordinator.WatchEvent)
	seqCount map[string]int64

	sessionMu      sync.Mutex
	sessionExpired bool
	sessionCbs     []func()
}

// New returns a fresh Coordinator with a single live session and the root
// node already present.
func New() *Coordinator {
	c := &Coordinator{
		nodes:    map[string]*node{"/": {children: map[string]struct{}{}}},
		watches:  map[string][]func(coordinator.WatchEvent){},
		seqCount: map[string]int64{},
	}
	return c
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

func parentOf(p string) string {
	dir := path.Dir(p)
	return dir
}

func (c *Coordinator) Create(_ context.Context, p string, data []byte, mode coordinator.CreateMode) (string, error) {
	p = clean(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionExpired {
		return "", fmt.Errorf("coordinator: session expired")
	}

	actual := p
	if mode == coordinator.EphemeralSequential {
		parent := parentOf(p)
		c.seqCount[parent]++
		actual = fmt.Sprintf("%s-%010d", p, c.seqCount[parent])
	} else if _, exists := c.nodes[p]; exists {
		return "", &coordinator.ErrNodeExists{Path: p}
	}

	c.nodes[actual] = &node{data: data, version: 0, mode: mode, children: map[string]struct{}{}}

	parent := parentOf(actual)
	if pn, ok := c.nodes[parent]; ok {
		name := path.Base(actual)
		pn.children[name] = struct{}{}
		c.fireLocked(parent, coordinator.WatchEvent{Path: parent, Type: coordinator.EventNodeChildrenChanged})
	}
	c.fireLocked(actual, coordinator.WatchEvent{Path: actual, Type: coordinator.EventNodeCreated})

	return actual, nil
}

func (c *Coordinator) Read(_ context.Context, p string) (coordinator.Node, error) {
	p = clean(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[p]
	if !ok {
		return coordinator.Node{}, &coordinator.ErrNoNode{Path: p}
	}
	return coordinator.Node{Path: p, Data: append([]byte(nil), n.data...), Version: n.version}, nil
}

func (c *Coordinator) Children(_ context.Context, p string) ([]string, error) {
	p = clean(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[p]
	if !ok {
		return nil, &coordinator.ErrNoNode{Path: p}
	}
	out := make([]string, 0, len(n.children))
	for name := range n.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Coordinator) Watch(_ context.Context, p string, cb func(coordinator.WatchEvent)) error {
	p = clean(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionExpired {
		cb(coordinator.WatchEvent{Path: p, Type: coordinator.EventSessionExpired})
		return nil
	}
	c.watches[p] = append(c.watches[p], cb)
	return nil
}

func (c *Coordinator) Delete(_ context.Context, p string, expectedVersion int64) error {
	p = clean(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[p]
	if !ok {
		return &coordinator.ErrNoNode{Path: p}
	}
	if expectedVersion >= 0 && n.version != expectedVersion {
		return &coordinator.ErrVersionMismatch{Path: p}
	}
	delete(c.nodes, p)

	parent := parentOf(p)
	if pn, ok := c.nodes[parent]; ok {
		delete(pn.children, path.Base(p))
		c.fireLocked(parent, coordinator.WatchEvent{Path: parent, Type: coordinator.EventNodeChildrenChanged})
	}
	c.fireLocked(p, coordinator.WatchEvent{Path: p, Type: coordinator.EventNodeDeleted, Deleted: true})
	return nil
}

func (c *Coordinator) SetData(_ context.Context, p string, data []byte, expectedVersion int64) (int64, error) {
	p = clean(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[p]
	if !ok {
		return 0, &coordinator.ErrNoNode{Path: p}
	}
	if expectedVersion >= 0 && n.version != expectedVersion {
		return 0, &coordinator.ErrVersionMismatch{Path: p}
	}
	n.data = append([]byte(nil), data...)
	n.version++
	c.fireLocked(p, coordinator.WatchEvent{Path: p, Type: coordinator.EventNodeDataChanged})
	return n.version, nil
}

// fireLocked must be called with c.mu held. It drains and invokes the
// one-shot watchers registered on path.
func (c *Coordinator) fireLocked(p string, ev coordinator.WatchEvent) {
	cbs := c.watches[p]
	delete(c.watches, p)
	for _, cb := range cbs {
		go cb(ev)
	}
}

func (c *Coordinator) OnSessionExpired(cb func()) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.sessionCbs = append(c.sessionCbs, cb)
}

// ExpireSession simulates a coordinator session loss: every outstanding
// watch fires with EventSessionExpired and every registered
// OnSessionExpired callback runs. Used by fencing tests (scenario 4).
func (c *Coordinator) ExpireSession() {
	c.mu.Lock()
	c.sessionExpired = true
	all := c.watches
	c.watches = map[string][]func(coordinator.WatchEvent){}
	c.mu.Unlock()

	for p, cbs := range all {
		for _, cb := range cbs {
			go cb(coordinator.WatchEvent{Path: p, Type: coordinator.EventSessionExpired})
		}
	}

	c.sessionMu.Lock()
	cbs := c.sessionCbs
	c.sessionMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionExpired = true
	return nil
}

var _ coordinator.Coordinator = (*Coordinator)(nil)
