package adminapi

import "errors"

// ErrStreamNotRunning is returned by a StreamManager's mutating methods
// when the named stream exists in the catalog but has no running
// LogWriter on this daemon instance to carry out the operation.
var ErrStreamNotRunning = errors.New("adminapi: stream has no running writer")
