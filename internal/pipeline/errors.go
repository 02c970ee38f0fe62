package pipeline

import "errors"

// Sentinel errors returned (wrapped) by Run. Each corresponds to the ERROR
// event the run emitted. Malformed input is reported as
// *reporef.MalformedReferenceError instead.
var (
	// ErrSession means no fetch session could be acquired.
	ErrSession = errors.New("fetch session unavailable")

	// ErrListing means the repository listing could not be retrieved.
	ErrListing = errors.New("listing failed")

	// ErrNoFiles means the listing yielded no file worth fetching.
	ErrNoFiles = errors.New("no relevant files")

	// ErrPersist means the assembled document could not be saved.
	ErrPersist = errors.New("persist failed")

	// ErrCancelled means the run's context ended before completion.
	ErrCancelled = errors.New("run cancelled")
)
