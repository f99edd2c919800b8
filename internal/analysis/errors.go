package analysis

import "errors"

// Pipeline failure taxonomy. Callers map these onto exit codes or HTTP
// statuses; everything else is an internal error.
var (
	// ErrMalformedInput means the boundary descriptor could not be parsed
	// or validated.
	ErrMalformedInput = errors.New("malformed boundary descriptor")

	// ErrNoImagery means the provider has no scenes for the requested
	// region and date range.
	ErrNoImagery = errors.New("no imagery for requested window")

	// ErrTooCloudy means imagery exists but exceeds the cloud-cover
	// threshold.
	ErrTooCloudy = errors.New("imagery too cloudy")

	// ErrNoTilesMerged means every tile fetch failed, leaving nothing to
	// composite.
	ErrNoTilesMerged = errors.New("no tiles merged")

	// ErrProviderUnavailable means the provider kept failing transiently
	// after retries were exhausted.
	ErrProviderUnavailable = errors.New("classification provider unavailable")
)
