package booking

import "errors"

// ErrRateLimited is returned when the caller exceeded the booking-attempt
// budget; state-machine and inventory failures surface the domain sentinels
// directly.
var ErrRateLimited = errors.New("rate limited")
