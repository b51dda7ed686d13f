package engine

import "errors"

// ErrDuplicateName is returned by AddActor/AddForeign when name is already
// registered in this engine's registry.
var ErrDuplicateName = errors.New("engine: name already registered")

// ErrNoRunMode is returned by Run when neither a Duration nor a
// terminate condition (TerminateWhen/TerminateFunc) is supplied.
var ErrNoRunMode = errors.New("engine: Run requires Duration (fixed mode) or TerminateWhen/TerminateFunc (condition-checked mode)")
