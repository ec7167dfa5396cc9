package config

import (
	"context"
	"fmt"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dlogio/dlog/pkg/catalog"
	"github.com/dlogio/dlog/pkg/coordinator"
	"github.com/dlogio/dlog/pkg/coordinator/badgerc"
	"github.com/dlogio/dlog/pkg/coordinator/memory"
	"github.com/dlogio/dlog/pkg/logwriter"
	"github.com/dlogio/dlog/pkg/readahead"
	"github.com/dlogio/dlog/pkg/segmentreader"
	"github.com/dlogio/dlog/pkg/segmentstore"
	memsegstore "github.com/dlogio/dlog/pkg/segmentstore/memory"
	s3segstore "github.com/dlogio/dlog/pkg/segmentstore/s3"
	"github.com/dlogio/dlog/pkg/segmentwriter"
)

// CreateCoordinator builds the coordinator.Coordinator backend selected by
// cfg. Callers own the returned Coordinator's lifecycle via Close; dlogd
// shares a single instance across every stream it runs, since the
// coordinator's node hierarchy is itself namespaced by stream path.
func (c *Config) CreateCoordinator() (coordinator.Coordinator, error) {
	switch c.Coordinator.Backend {
	case "memory":
		return memory.New(), nil
	case "badger":
		coord, err := badgerc.Open(c.Coordinator.Badger.Dir)
		if err != nil {
			return nil, fmt.Errorf("config: open badger coordinator: %w", err)
		}
		return coord, nil
	default:
		return nil, fmt.Errorf("config: unsupported coordinator backend %q", c.Coordinator.Backend)
	}
}

// CreateSegmentStore builds a fresh segmentstore.Store for streamName.
//
// segmentstore.Store.Create identifies segments by a bare, unscoped
// segmentID; a single shared Store instance would let two streams collide
// on the same decimal segment_seq. Every call to CreateSegmentStore
// therefore returns an independent backend instance, namespaced by
// streamName (the memory backend is simply fresh per call; the S3 backend
// is namespaced via KeyPrefix).
func (c *Config) CreateSegmentStore(ctx context.Context, streamName string) (segmentstore.Store, error) {
	switch c.SegmentStore.Backend {
	case "memory":
		return memsegstore.New(), nil
	case "s3":
		s3cfg := c.SegmentStore.S3
		client, err := s3segstore.NewClientFromConfig(ctx, s3cfg.Endpoint, s3cfg.Region, s3cfg.AccessKeyID, s3cfg.SecretAccessKey, s3cfg.ForcePathStyle)
		if err != nil {
			return nil, fmt.Errorf("config: build s3 client for stream %q: %w", streamName, err)
		}
		return s3segstore.New(s3segstore.Config{
			Client:    client,
			Bucket:    s3cfg.Bucket,
			KeyPrefix: s3cfg.KeyPrefix + streamName + "/",
		}), nil
	default:
		return nil, fmt.Errorf("config: unsupported segmentstore backend %q", c.SegmentStore.Backend)
	}
}

// CreateS3Client is exposed for dlogctl's admin commands, which don't
// otherwise need the full per-stream segment store construction above, but
// may need direct bucket access for diagnostics.
func (c *Config) CreateS3Client(ctx context.Context) (*awss3.Client, error) {
	s3cfg := c.SegmentStore.S3
	return s3segstore.NewClientFromConfig(ctx, s3cfg.Endpoint, s3cfg.Region, s3cfg.AccessKeyID, s3cfg.SecretAccessKey, s3cfg.ForcePathStyle)
}

// CreateCatalog opens the stream registry described by cfg.Catalog.
func (c *Config) CreateCatalog(ctx context.Context) (*catalog.Store, error) {
	return catalog.New(ctx, &c.Catalog)
}

// LogWriterConfig adapts cfg's Stream/Rolling sections into a
// logwriter.Config for one stream's LogWriter.
func (c *Config) LogWriterConfig() logwriter.Config {
	return logwriter.Config{
		Policy: logwriter.Policy{
			Enabled:         c.Rolling.Enabled,
			MaxSegmentBytes: c.Rolling.MaxSegmentBytes.Int64(),
			MaxSegmentAge:   c.Rolling.MaxSegmentAge,
			MaxRecordCount:  c.Rolling.MaxRecordCount,
		},
		FailFastOnRoll: c.Rolling.FailFastOnRoll,
		Writer: segmentwriter.Config{
			MaxRecordSize:       int(c.Stream.MaxRecordSize.Int64()),
			MaxTransmissionSize: int(c.Stream.MaxTransmissionSize.Int64()),
			PeriodicFlush:       c.Stream.PeriodicFlush,
			FlushTimeout:        c.Stream.FlushTimeout,
			CloseRetryBudget:    c.Stream.CloseRetryBudget,
		},
		RegionID:   c.RegionID,
		QueueDepth: c.Stream.QueueDepth,
	}
}

// SegmentReaderConfig adapts cfg's ReadAhead/Reader sections into a
// segmentreader.Config for one stream's Reader.
func (c *Config) SegmentReaderConfig() segmentreader.Config {
	return segmentreader.Config{
		WarnIdle:         c.Reader.WarnIdle,
		ErrorIdle:        c.Reader.ErrorIdle,
		PollInterval:     c.Reader.PollInterval,
		ReadAheadEnabled: c.ReadAhead.Enabled,
		ReadAhead: readahead.Config{
			InitialBatch: c.ReadAhead.InitialBatch,
			MaxBatch:     c.ReadAhead.MaxBatch,
			PollInterval: c.ReadAhead.PollInterval,
		},
		MaxPendingReads: c.Reader.MaxPendingReads,
	}
}
