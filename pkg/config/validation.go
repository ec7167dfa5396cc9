package config

import "fmt"

// ValidateStreamConfig checks the stream-tuning section's cross-field
// invariants beyond what struct tags express: max_transmission_size must be
// at least max_record_size. Record framing overhead is not counted.
func ValidateStreamConfig(c StreamConfig) error {
	if c.MaxTransmissionSize < c.MaxRecordSize {
		return fmt.Errorf("stream: max_transmission_size (%s) must be >= max_record_size (%s)",
			c.MaxTransmissionSize, c.MaxRecordSize)
	}
	return nil
}
