package vclock

import "errors"

// ErrAdvanceInProgress is returned when Advance or AdvanceUntil is called
// while another advance is already running on the same clock. Concurrent
// advances are prohibited; callers must serialise them.
var ErrAdvanceInProgress = errors.New("vclock: advance already in progress")

// ErrPastTarget is returned by AdvanceUntil when the requested target time
// precedes the clock's current time.
var ErrPastTarget = errors.New("vclock: target time precedes now")
