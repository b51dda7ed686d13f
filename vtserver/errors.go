package vtserver

import "errors"

// ErrCallTimeout is the Err value of a CallResult delivered to HandleInfo
// when a Call's reply-expected timer elapses before any reply arrived.
var ErrCallTimeout = errors.New("vtserver: call timed out")

// ErrUnknownTarget is returned (and, where it can't be returned, logged) when
// Send/Cast/Call/SendAfter names a target the bound Router cannot resolve.
var ErrUnknownTarget = errors.New("vtserver: unknown target")

// ErrNoPendingCall names the case of a call reply or timeout arriving for a
// callID the server is no longer tracking (already resolved). Server does
// not return it: such a reply or timeout is dropped without reaching
// HandleInfo.
var ErrNoPendingCall = errors.New("vtserver: no pending call for id")
