package domain

import "errors"

// ErrSuperseded resolves a queued command that was replaced by a newer
// command for the same device before it was dispatched. It signals a
// cancellation, not a failure.
var ErrSuperseded = errors.New("command superseded by a newer command")

// ErrRemoteTimeout marks a remote call that produced no response within the
// API client's timeout. The call still counted against the rate budget.
var ErrRemoteTimeout = errors.New("remote call timed out")
