// Package daemon wires together dlogd's process-lifetime state: the
// catalog, the coordinator, and one LogWriter per registered stream, kept
// in sync with the catalog by a background poll loop since stream creation
// (dlogctl stream create) writes to the catalog directly rather than
// through a running dlogd.
package daemon

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/pkg/adminapi"
	"github.com/dlogio/dlog/pkg/catalog"
	"github.com/dlogio/dlog/pkg/config"
	"github.com/dlogio/dlog/pkg/coordinator"
	"github.com/dlogio/dlog/pkg/lock"
	"github.com/dlogio/dlog/pkg/logwriter"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	"github.com/dlogio/dlog/pkg/segmentstore"
)

// streamRootPath is the coordinator subtree a stream's lock and segment
// metadata live under.
func streamRootPath(name string) string { return path.Join("/dlog/streams", name) }

// streamPollInterval is how often the daemon checks the catalog for streams
// created since it last looked, e.g. by a concurrently-running dlogctl
// stream create.
const streamPollInterval = 2 * time.Second

// runningStream bundles everything the daemon keeps alive for one stream.
type runningStream struct {
	writer *logwriter.LogWriter
	meta   *segmentmeta.Store
	store  segmentstore.Store
	lock   *lock.DistributedLock
}

// Daemon owns every stream dlogd currently runs, plus the shared catalog
// and coordinator they're built on.
type Daemon struct {
	cfg     *config.Config
	catalog *catalog.Store
	coord   coordinator.Coordinator

	writerMetrics metrics.WriterMetrics
	lockMetrics   metrics.LockMetrics

	mu      sync.RWMutex
	streams map[string]*runningStream

	pollStop chan struct{}
	pollDone chan struct{}
}

// New opens the catalog and coordinator backends cfg selects, but does not
// yet start any stream's LogWriter; call Start for that.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	catalogStore, err := cfg.CreateCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon: open catalog: %w", err)
	}

	coord, err := cfg.CreateCoordinator()
	if err != nil {
		catalogStore.Close()
		return nil, fmt.Errorf("daemon: create coordinator: %w", err)
	}

	return &Daemon{
		cfg:           cfg,
		catalog:       catalogStore,
		coord:         coord,
		writerMetrics: metrics.NewWriterMetrics(),
		lockMetrics:   metrics.NewLockMetrics(),
		streams:       map[string]*runningStream{},
	}, nil
}

// Start brings up a LogWriter for every stream already in the catalog and
// begins polling for streams registered afterward.
func (d *Daemon) Start(ctx context.Context) error {
	streams, err := d.catalog.ListStreams(ctx)
	if err != nil {
		return fmt.Errorf("daemon: list streams: %w", err)
	}
	for _, s := range streams {
		if err := d.startStream(ctx, s.Name); err != nil {
			return fmt.Errorf("daemon: start stream %q: %w", s.Name, err)
		}
	}

	d.pollStop = make(chan struct{})
	d.pollDone = make(chan struct{})
	go d.pollNewStreams()

	logger.InfoCtx(ctx, "daemon started", "stream_count", len(streams))
	return nil
}

// pollNewStreams periodically starts a LogWriter for any catalog stream
// this process doesn't already run, picking up streams registered by a
// concurrent dlogctl stream create.
func (d *Daemon) pollNewStreams() {
	defer close(d.pollDone)
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.pollStop:
			return
		case <-ticker.C:
			ctx := context.Background()
			streams, err := d.catalog.ListStreams(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "daemon: poll list streams failed", "error", err)
				continue
			}
			for _, s := range streams {
				d.mu.RLock()
				_, running := d.streams[s.Name]
				d.mu.RUnlock()
				if running {
					continue
				}
				if err := d.startStream(ctx, s.Name); err != nil {
					logger.WarnCtx(ctx, "daemon: failed to start newly discovered stream",
						"stream", s.Name, "error", err)
				}
			}
		}
	}
}

func (d *Daemon) startStream(ctx context.Context, name string) error {
	d.mu.Lock()
	if _, ok := d.streams[name]; ok {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	store, err := d.cfg.CreateSegmentStore(ctx, name)
	if err != nil {
		return fmt.Errorf("create segment store: %w", err)
	}

	meta := segmentmeta.New(d.coord, streamRootPath(name))
	streamLock := lock.New(d.coord, path.Join(streamRootPath(name), "lock"))

	writer := logwriter.New(name, d.cfg.LogWriterConfig(), meta, store, streamLock, d.writerMetrics, d.lockMetrics)
	if err := writer.Start(ctx); err != nil {
		return fmt.Errorf("start log writer: %w", err)
	}

	d.mu.Lock()
	d.streams[name] = &runningStream{writer: writer, meta: meta, store: store, lock: streamLock}
	d.mu.Unlock()

	logger.InfoCtx(ctx, "stream writer started", "stream", name)
	return nil
}

// Stop closes every running stream's writer, stops the poll loop, and
// releases the catalog and coordinator.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.pollStop != nil {
		close(d.pollStop)
		<-d.pollDone
	}

	d.mu.Lock()
	streams := d.streams
	d.streams = map[string]*runningStream{}
	d.mu.Unlock()

	for name, rs := range streams {
		if err := rs.writer.CloseAndComplete(ctx); err != nil {
			logger.WarnCtx(ctx, "closing stream writer reported an error", "stream", name, "error", err)
		}
	}

	if err := d.coord.Close(); err != nil {
		logger.WarnCtx(ctx, "closing coordinator reported an error", "error", err)
	}
	return d.catalog.Close()
}

// Healthcheck implements adminapi.Healthchecker by delegating to the
// catalog connection.
func (d *Daemon) Healthcheck(ctx context.Context) error {
	return d.catalog.Healthcheck(ctx)
}

// metaStoreFor returns a segmentmeta.Store for name, constructing one even
// if no LogWriter is currently running for it: metadata reads never require
// a live writer.
func (d *Daemon) metaStoreFor(name string) *segmentmeta.Store {
	d.mu.RLock()
	if rs, ok := d.streams[name]; ok {
		d.mu.RUnlock()
		return rs.meta
	}
	d.mu.RUnlock()
	return segmentmeta.New(d.coord, streamRootPath(name))
}

// ListStreams implements adminapi.StreamManager.
func (d *Daemon) ListStreams(ctx context.Context) ([]*catalog.Stream, error) {
	return d.catalog.ListStreams(ctx)
}

// GetStream implements adminapi.StreamManager.
func (d *Daemon) GetStream(ctx context.Context, name string) (*catalog.Stream, error) {
	return d.catalog.GetStream(ctx, name)
}

// ListSegments implements adminapi.StreamManager.
func (d *Daemon) ListSegments(ctx context.Context, name string) ([]segmentmeta.Metadata, error) {
	return d.metaStoreFor(name).List(ctx)
}

// Truncate implements adminapi.StreamManager.
func (d *Daemon) Truncate(ctx context.Context, name string, pos position.Position) error {
	d.mu.RLock()
	rs, ok := d.streams[name]
	d.mu.RUnlock()
	if !ok {
		return adminapi.ErrStreamNotRunning
	}
	if err := rs.writer.Truncate(ctx, pos); err != nil {
		return err
	}
	return d.catalog.SetTruncation(ctx, name, pos)
}

// MarkEndOfStream implements adminapi.StreamManager.
func (d *Daemon) MarkEndOfStream(ctx context.Context, name string) error {
	d.mu.RLock()
	rs, ok := d.streams[name]
	d.mu.RUnlock()
	if !ok {
		return adminapi.ErrStreamNotRunning
	}
	return rs.writer.MarkEndOfStream(ctx)
}

// ForceRoll implements adminapi.StreamManager.
func (d *Daemon) ForceRoll(ctx context.Context, name string) error {
	d.mu.RLock()
	rs, ok := d.streams[name]
	d.mu.RUnlock()
	if !ok {
		return adminapi.ErrStreamNotRunning
	}
	return rs.writer.ForceRoll(ctx)
}

var _ adminapi.StreamManager = (*Daemon)(nil)
var _ adminapi.Healthchecker = (*Daemon)(nil)
