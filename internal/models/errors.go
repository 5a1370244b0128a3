package models

import (
	"context"
	"errors"
)

// Error kinds reported by the core. Callers match them with errors.Is.
var (
	// ErrOutOfDomain is returned by coordinate transforms for positions the
	// projection cannot represent. It is handled inside the core and never
	// reported as a request failure.
	ErrOutOfDomain = errors.New("coordinates outside projection domain")

	ErrPointNotOnExposure = errors.New("point not on exposure")
	ErrRegionEmpty        = errors.New("cutout region empty after clamping")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrCorruptSource      = errors.New("corrupt source data")

	// ErrAmbiguousExposure is advisory: more than one exposure matched and the
	// first in sequence order was used.
	ErrAmbiguousExposure = errors.New("ambiguous exposure")

	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrOutOfDomain, "out_of_domain"},
	{ErrPointNotOnExposure, "point_not_on_exposure"},
	{ErrRegionEmpty, "region_empty"},
	{ErrStorageUnavailable, "storage_unavailable"},
	{ErrTimeout, "timeout"},
	{ErrCorruptSource, "corrupt_source"},
	{ErrAmbiguousExposure, "ambiguous_exposure"},
	{ErrNotFound, "not_found"},
	{ErrInvalidRequest, "invalid_request"},
}

// Kind returns the stable code of the first error kind found in err's chain,
// "internal_error" for anything unrecognized and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "internal_error"
}

// KindError maps a code produced by Kind back to its sentinel. Unknown codes
// return nil.
func KindError(code string) error {
	for _, k := range kinds {
		if k.code == code {
			return k.err
		}
	}
	return nil
}

// Retryable reports whether repeating the request may succeed.
func Retryable(err error) bool {
	switch Kind(err) {
	case "storage_unavailable", "timeout":
		return true
	}
	return false
}
