package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dlogio/dlog/internal/bytesize"
)

func TestValidateStreamConfigRejectsTransmissionSmallerThanRecord(t *testing.T) {
	c := StreamConfig{
		MaxRecordSize:       bytesize.MiB,
		MaxTransmissionSize: 512 * bytesize.KiB,
	}
	assert.Error(t, ValidateStreamConfig(c))
}

func TestValidateStreamConfigAcceptsEqualSizes(t *testing.T) {
	c := StreamConfig{
		MaxRecordSize:       bytesize.MiB,
		MaxTransmissionSize: bytesize.MiB,
	}
	assert.NoError(t, ValidateStreamConfig(c))
}
