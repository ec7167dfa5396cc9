package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndIterate(t *testing.T) {
	recs := []Record{
		{TxID: 1, Payload: []byte("hello")},
		{TxID: 2, Payload: []byte("world")},
		NewControl(2),
	}

	var buf []byte
	for _, r := range recs {
		buf = Append(buf, r)
	}

	reader := NewReader(buf)
	for i, want := range recs {
		got, more, err := reader.Next()
		require.NoError(t, err)
		require.True(t, more, "record %d", i)
		assert.Equal(t, want.TxID, got.TxID)
		assert.Equal(t, want.Payload, got.Payload)
		assert.Equal(t, want.Flags, got.Flags)
	}
	_, more, err := reader.Next()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestSkipMatchesNext(t *testing.T) {
	var buf []byte
	buf = Append(buf, Record{TxID: 1, Payload: []byte("abc")})
	buf = Append(buf, Record{TxID: 2, Payload: []byte("defgh")})

	skipper := NewReader(buf)
	n, err := skipper.Skip()
	require.NoError(t, err)
	assert.Equal(t, headerSize+3, n)

	next, more, err := skipper.Next()
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, int64(2), next.TxID)
}

func TestNextRejectsTruncatedHeader(t *testing.T) {
	reader := NewReader([]byte{0, 1, 2})
	_, _, err := reader.Next()
	assert.Error(t, err)
}

func TestNextRejectsNegativeLength(t *testing.T) {
	buf := Append(nil, Record{TxID: 1, Payload: []byte("x")})
	// corrupt the length field to -1
	buf[16] = 0xFF
	buf[17] = 0xFF
	buf[18] = 0xFF
	buf[19] = 0xFF
	reader := NewReader(buf)
	_, _, err := reader.Next()
	assert.Error(t, err)
}

func TestValidateOverLimit(t *testing.T) {
	r := Record{TxID: 1, Payload: make([]byte, MaxRecordSize+1)}
	err := Validate(r, MaxRecordSize, false)
	assert.Error(t, err)
}

func TestValidateRejectsReservedTxID(t *testing.T) {
	r := Record{TxID: MaxTxID, Payload: []byte("x")}
	err := Validate(r, MaxRecordSize, false)
	assert.Error(t, err)

	err = Validate(r, MaxRecordSize, true)
	assert.NoError(t, err)
}

func TestValidateRejectsNegativeTxID(t *testing.T) {
	r := Record{TxID: -1, Payload: []byte("x")}
	assert.Error(t, Validate(r, MaxRecordSize, false))
}

func TestCount(t *testing.T) {
	var buf []byte
	for i := 0; i < 5; i++ {
		buf = Append(buf, Record{TxID: int64(i), Payload: []byte("x")})
	}
	n, err := Count(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
