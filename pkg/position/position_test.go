package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	p := Position{SegmentSeq: 3, EntryID: 17, SlotID: 2}

	encoded := Encode(p)
	require.Len(t, encoded, encodedLen)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)

	s := EncodeString(p)
	decodedFromString, err := DecodeString(s)
	require.NoError(t, err)
	assert.Equal(t, p, decodedFromString)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	b := Encode(Position{SegmentSeq: 1, EntryID: 0, SlotID: 0})
	b[0] = 7
	_, err := Decode(b)
	assert.Error(t, err)
}

func TestDecodeAcceptsV0Layout(t *testing.T) {
	b := Encode(Position{SegmentSeq: 5, EntryID: 1, SlotID: 0})
	b[0] = byte(V0)
	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, Position{SegmentSeq: 5, EntryID: 1, SlotID: 0}, p)
}

func TestOrdering(t *testing.T) {
	a := Position{SegmentSeq: 1, EntryID: 9, SlotID: 0}
	b := Position{SegmentSeq: 2, EntryID: 0, SlotID: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestNextSegment(t *testing.T) {
	p := Position{SegmentSeq: 4, EntryID: 12, SlotID: 3}
	n := p.NextSegment()
	assert.Equal(t, Position{SegmentSeq: 5, EntryID: 0, SlotID: -1}, n)
}
