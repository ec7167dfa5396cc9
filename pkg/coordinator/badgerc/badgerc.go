// Package badgerc is a single-process reference coordinator.Coordinator
// backed by BadgerDB, for local and development deployments that don't
// warrant a real ZooKeeper/etcd-style ensemble. Node data is persisted
// across restarts; ephemeral nodes are swept on Close to approximate
// session-scoped lifetime in a single process. Watches are delivered
// in-process since Badger has no cross-process change feed wired here.
package badgerc

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/pkg/coordinator"
)

const (
	nodePrefix = "node:"
	seqPrefix  = "seq:"
)

type persistedNode struct {
	Data    []byte               `json:"data"`
	Version int64                `json:"version"`
	Mode    coordinator.CreateMode `json:"mode"`
}

// Coordinator is a BadgerDB-backed coordinator.Coordinator.
type Coordinator struct {
	db *badgerdb.DB

	mu             sync.Mutex
	watches        map[string][]func(coordinator.WatchEvent)
	sessionExpired bool
	sessionCbs     []func()
	ephemeral      map[string]struct{}
}

// Open opens (creating if absent) a BadgerDB at dir and returns a
// Coordinator backed by it. Callers own the returned DB's lifecycle via
// Close.
func Open(dir string) (*Coordinator, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("coordinator/badgerc: open: %w", err)
	}
	c := &Coordinator{
		db:        db,
		watches:   map[string][]func(coordinator.WatchEvent){},
		ephemeral: map[string]struct{}{},
	}
	if err := c.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) ensureRoot() error {
	return c.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(nodePrefix + "/"))
		if err == nil {
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Set([]byte(nodePrefix+"/"), mustMarshal(persistedNode{Mode: coordinator.Persistent}))
	})
}

func mustMarshal(n persistedNode) []byte {
	b, _ := json.Marshal(n)
	return b
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

func (c *Coordinator) getTx(txn *badgerdb.Txn, p string) (persistedNode, error) {
	item, err := txn.Get([]byte(nodePrefix + p))
	if err == badgerdb.ErrKeyNotFound {
		return persistedNode{}, &coordinator.ErrNoNode{Path: p}
	}
	if err != nil {
		return persistedNode{}, err
	}
	var n persistedNode
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &n) })
	return n, err
}

// Create implements coordinator.Coordinator.
func (c *Coordinator) Create(ctx context.Context, p string, data []byte, mode coordinator.CreateMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p = clean(p)

	actualPath := p
	if mode == coordinator.EphemeralSequential {
		seq, err := c.nextSeq(path.Dir(p))
		if err != nil {
			return "", err
		}
		actualPath = fmt.Sprintf("%s%010d", p, seq)
	}

	err := c.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(nodePrefix + actualPath)); err == nil {
			return &coordinator.ErrNodeExists{Path: actualPath}
		}
		return txn.Set([]byte(nodePrefix+actualPath), mustMarshal(persistedNode{Data: data, Mode: mode}))
	})
	if err != nil {
		return "", fmt.Errorf("coordinator/badgerc: create %s: %w", actualPath, err)
	}

	if mode == coordinator.Ephemeral || mode == coordinator.EphemeralSequential {
		c.mu.Lock()
		c.ephemeral[actualPath] = struct{}{}
		c.mu.Unlock()
	}

	c.fire(path.Dir(actualPath), coordinator.WatchEvent{Path: path.Dir(actualPath), Type: coordinator.EventNodeChildrenChanged})
	c.fire(actualPath, coordinator.WatchEvent{Path: actualPath, Type: coordinator.EventNodeCreated})
	logger.InfoCtx(ctx, "coordinator/badgerc: created node", "path", actualPath, "mode", mode)
	return actualPath, nil
}

func (c *Coordinator) nextSeq(parent string) (int64, error) {
	var seq int64
	err := c.db.Update(func(txn *badgerdb.Txn) error {
		key := []byte(seqPrefix + parent)
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			seq = 0
		} else if err != nil {
			return err
		} else {
			err = item.Value(func(val []byte) error {
				n, perr := strconv.ParseInt(string(val), 10, 64)
				seq = n
				return perr
			})
			if err != nil {
				return err
			}
		}
		seq++
		return txn.Set(key, []byte(strconv.FormatInt(seq, 10)))
	})
	return seq, err
}

// Read implements coordinator.Coordinator.
func (c *Coordinator) Read(ctx context.Context, p string) (coordinator.Node, error) {
	if err := ctx.Err(); err != nil {
		return coordinator.Node{}, err
	}
	p = clean(p)
	var n persistedNode
	err := c.db.View(func(txn *badgerdb.Txn) error {
		var err error
		n, err = c.getTx(txn, p)
		return err
	})
	if err != nil {
		return coordinator.Node{}, err
	}
	return coordinator.Node{Path: p, Data: n.Data, Version: n.Version}, nil
}

// Children implements coordinator.Coordinator.
func (c *Coordinator) Children(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = clean(p)
	prefix := strings.TrimSuffix(p, "/") + "/"

	var names []string
	err := c.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(nodePrefix + prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := map[string]struct{}{}
		for it.Seek([]byte(nodePrefix + prefix)); it.ValidForPrefix([]byte(nodePrefix + prefix)); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), nodePrefix)
			rest := strings.TrimPrefix(key, prefix)
			if rest == "" {
				continue
			}
			name := rest
			if idx := strings.Index(rest, "/"); idx >= 0 {
				name = rest[:idx]
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// Watch implements coordinator.Coordinator. The callback fires once, on
// the next change or deletion of p.
func (c *Coordinator) Watch(ctx context.Context, p string, cb func(coordinator.WatchEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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

func (c *Coordinator) fire(p string, ev coordinator.WatchEvent) {
	c.mu.Lock()
	cbs := c.watches[p]
	delete(c.watches, p)
	c.mu.Unlock()
	for _, cb := range cbs {
		go cb(ev)
	}
}

// Delete implements coordinator.Coordinator.
func (c *Coordinator) Delete(ctx context.Context, p string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = clean(p)
	err := c.db.Update(func(txn *badgerdb.Txn) error {
		n, err := c.getTx(txn, p)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && n.Version != expectedVersion {
			return &coordinator.ErrVersionMismatch{Path: p}
		}
		return txn.Delete([]byte(nodePrefix + p))
	})
	if err != nil {
		return fmt.Errorf("coordinator/badgerc: delete %s: %w", p, err)
	}
	c.mu.Lock()
	delete(c.ephemeral, p)
	c.mu.Unlock()
	c.fire(p, coordinator.WatchEvent{Path: p, Type: coordinator.EventNodeDeleted, Deleted: true})
	c.fire(path.Dir(p), coordinator.WatchEvent{Path: path.Dir(p), Type: coordinator.EventNodeChildrenChanged})
	return nil
}

// SetData implements coordinator.Coordinator.
func (c *Coordinator) SetData(ctx context.Context, p string, data []byte, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p = clean(p)
	var newVersion int64
	err := c.db.Update(func(txn *badgerdb.Txn) error {
		n, err := c.getTx(txn, p)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && n.Version != expectedVersion {
			return &coordinator.ErrVersionMismatch{Path: p}
		}
		n.Data = data
		n.Version++
		newVersion = n.Version
		return txn.Set([]byte(nodePrefix+p), mustMarshal(n))
	})
	if err != nil {
		return 0, fmt.Errorf("coordinator/badgerc: set data %s: %w", p, err)
	}
	c.fire(p, coordinator.WatchEvent{Path: p, Type: coordinator.EventNodeDataChanged})
	return newVersion, nil
}

// OnSessionExpired implements coordinator.Coordinator.
func (c *Coordinator) OnSessionExpired(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCbs = append(c.sessionCbs, cb)
}

// Close releases all ephemeral nodes created by this session and closes
// the underlying BadgerDB handle.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	ephemeral := make([]string, 0, len(c.ephemeral))
	for p := range c.ephemeral {
		ephemeral = append(ephemeral, p)
	}
	c.mu.Unlock()

	_ = c.db.Update(func(txn *badgerdb.Txn) error {
		for _, p := range ephemeral {
			_ = txn.Delete([]byte(nodePrefix + p))
		}
		return nil
	})
	return c.db.Close()
}

var _ coordinator.Coordinator = (*Coordinator)(nil)
