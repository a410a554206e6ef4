package callclient

import "context"

// MediaErrorKind distinguishes why local media acquisition failed.
// Callers surface each kind differently; none of them is retried
// within a call attempt.
type MediaErrorKind string

const (
	MediaPermissionDenied MediaErrorKind = "permission_denied"
	MediaNotFound         MediaErrorKind = "not_found"
	MediaBusy             MediaErrorKind = "busy"
	MediaOverconstrained  MediaErrorKind = "overconstrained"
	MediaUnsupported      MediaErrorKind = "unsupported"
)

// MediaError wraps a media acquisition failure with its kind.
type MediaError struct {
	Kind MediaErrorKind
	Err  error
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return "media acquisition failed: " + string(e.Kind)
	}
	return "media acquisition failed (" + string(e.Kind) + "): " + e.Err.Error()
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// MediaStream is an acquired set of local media device handles. Close
// releases the devices and must be safe to call more than once.
type MediaStream interface {
	Close() error
}

// MediaSource acquires local media for one call attempt.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// MediaSourceFunc adapts a function to the MediaSource interface.
type MediaSourceFunc func(ctx context.Context) (MediaStream, error)

func (f MediaSourceFunc) Acquire(ctx context.Context) (MediaStream, error) {
	return f(ctx)
}
