package staging

import (
	"errors"
	"fmt"
)

// ErrStale is returned by any mutator called on a finished staging or substage.
var ErrStale = errors.New("stale staging method called")

// ConcurrentStagingError is returned when a staging is started while another
// one is still active.
type ConcurrentStagingError struct {
	Active    Descriptor
	Requested Descriptor
}

func (e *ConcurrentStagingError) Error() string {
	return fmt.Sprintf("staging already in progress: active=%s requested=%s", e.Active, e.Requested)
}
