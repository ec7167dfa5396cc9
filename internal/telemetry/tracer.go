package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for log-stream operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Stream / segment identity
	// ========================================================================
	AttrStreamName  = "dlog.stream"
	AttrSegmentSeq  = "dlog.segment_seq"
	AttrEntryID     = "dlog.entry_id"
	AttrFromEntryID = "dlog.from_entry_id"
	AttrToEntryID   = "dlog.to_entry_id"
	AttrRecordCount = "dlog.record_count"
	AttrByteSize    = "dlog.byte_size"
	AttrIsControl   = "dlog.is_control"

	// ========================================================================
	// Cache attributes (read-ahead)
	// ========================================================================
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"
	AttrCacheSize   = "cache.size"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for core log-stream operations.
const (
	SpanTransmit      = "segmentwriter.transmit"
	SpanFlush         = "segmentwriter.flush"
	SpanRoll          = "logwriter.roll"
	SpanReadAheadFill = "readahead.fill"
)

// StreamName returns an attribute for a stream's name.
func StreamName(name string) attribute.KeyValue {
	return attribute.String(AttrStreamName, name)
}

// SegmentSeq returns an attribute for a segment sequence number.
func SegmentSeq(seq int64) attribute.KeyValue {
	return attribute.Int64(AttrSegmentSeq, seq)
}

// EntryID returns an attribute for a segment-store entry ID.
func EntryID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrEntryID, id)
}

// EntryRange returns attributes for an inclusive [from, to] entry ID range, used by
// read-ahead fills that fetch a batch of entries in one call.
func EntryRange(from, to int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrFromEntryID, from),
		attribute.Int64(AttrToEntryID, to),
	}
}

// RecordCount returns an attribute for the number of records in a batch.
func RecordCount(n int) attribute.KeyValue {
	return attribute.Int(AttrRecordCount, n)
}

// ByteSize returns an attribute for the byte size of a transmission unit.
func ByteSize(n int) attribute.KeyValue {
	return attribute.Int(AttrByteSize, n)
}

// IsControl returns an attribute marking a transmission as a control record.
func IsControl(b bool) attribute.KeyValue {
	return attribute.Bool(AttrIsControl, b)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for cache source
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheSize returns an attribute for the number of cached entries.
func CacheSize(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheSize, n)
}

// StoreName returns an attribute for store name
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartTransmitSpan starts a span for a segmentwriter transmission unit
// hand-off to the segment store.
func StartTransmitSpan(ctx context.Context, segmentSeq int64, records, bytes int, isControl bool) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTransmit, trace.WithAttributes(
		SegmentSeq(segmentSeq),
		RecordCount(records),
		ByteSize(bytes),
		IsControl(isControl),
	))
}

// StartFlushSpan starts a span for a segmentwriter flush.
func StartFlushSpan(ctx context.Context, segmentSeq int64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanFlush, trace.WithAttributes(SegmentSeq(segmentSeq)))
}

// StartRollSpan starts a span for a logwriter segment roll.
func StartRollSpan(ctx context.Context, streamName string, oldSeq int64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRoll, trace.WithAttributes(
		StreamName(streamName),
		SegmentSeq(oldSeq),
	))
}

// StartReadAheadFillSpan starts a span for a read-ahead worker fetching and
// caching a batch of entries.
func StartReadAheadFillSpan(ctx context.Context, from, to int64) (context.Context, trace.Span) {
	attrs := EntryRange(from, to)
	return StartSpan(ctx, SpanReadAheadFill, trace.WithAttributes(attrs...))
}
