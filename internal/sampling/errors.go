package sampling

import "errors"

var (
	// ErrConfig is returned for inconsistent session inputs or a checkpoint
	// that does not belong to this session.
	ErrConfig = errors.New("invalid sampling configuration")
	// ErrResource is returned when the checkpoint file cannot be read or written.
	ErrResource = errors.New("checkpoint resource error")
	// ErrNotInitialized is returned by Sample before Initialize has succeeded.
	ErrNotInitialized = errors.New("sampler is not initialized")
)
