package usage

import "errors"

// ErrMalformedUsage indicates a usage entry without the numeric fields the
// data source promises.
var ErrMalformedUsage = errors.New("malformed usage entry")
