package fabric

import (
	"errors"
	"fmt"

	"aeroncap/pkg/idle"
)

// Sentinel errors a caller can match with errors.Is. These are the three
// buckets every fabric-facing operation in this module collapses into.
// ErrOverloaded is the idle package's budget-exhausted error, so an
// exhausted Yield or Periodic idler matches it directly.
var (
	ErrDisconnected = errors.New("fabric: disconnected")
	ErrOverloaded   = idle.ErrOverloaded
	ErrFailed       = errors.New("fabric: failed")
)

// ToError classifies a non-success ResultCode into one of the sentinel
// errors above, following the same split as the original design's
// toException: MAX_POSITION_EXCEEDED, NOT_CONNECTED, and PUBLICATION_CLOSED
// are all terminal disconnects; anything else unrecognized is unclassified
// failure. BackPressured and AdminAction are never passed here — callers
// retry those via an Idler instead of turning them into errors.
func ToError(code ResultCode) error {
	switch code {
	case MaxPositionExceeded:
		return fmt.Errorf("%w: max position exceeded", ErrDisconnected)
	case NotConnected:
		return fmt.Errorf("%w: not connected", ErrDisconnected)
	case PublicationClosed:
		return fmt.Errorf("%w: publication closed", ErrDisconnected)
	default:
		return fmt.Errorf("%w: unrecognized fabric result code %d", ErrFailed, code)
	}
}
