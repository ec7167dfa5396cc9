package catalog

import (
	"strings"

	"github.com/dlogio/dlog/pkg/dlogerr"
)

// ValidateStreamName rejects reserved (leading-dot) and malformed
// (containing '/') stream names. Stream names double as coordinator znode
// and segment-store object path components elsewhere in this module, so
// the same restrictions apply here before a name is ever persisted.
func ValidateStreamName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "/") {
		return dlogerr.ErrInvalidStreamName
	}
	return nil
}
