package core

import "errors"

// Failure taxonomy. The dispatcher decides retry behavior with errors.Is
// against these sentinels; everything else is treated as a local IO failure.
var (
	// ErrMappingNotFound means no remote folder is mapped for the file's
	// (base path, hint, label) triple. Not retried automatically; the file
	// stays in the source dir until the mapping table is fixed and the
	// file is touched again.
	ErrMappingNotFound = errors.New("no remote folder mapping")

	// ErrAuthFailure means the remote host rejected our key. Retrying
	// without operator intervention is pointless.
	ErrAuthFailure = errors.New("remote authentication failed")

	// ErrNetworkFailure covers dial/connection errors. Retried with backoff.
	ErrNetworkFailure = errors.New("network failure")

	// ErrRemoteIOFailure covers remote filesystem errors (missing folder
	// with mkdir disabled, permission, disk). Retried with backoff.
	ErrRemoteIOFailure = errors.New("remote io failure")

	// ErrCollisionUnresolved means the archive name collided more times
	// than the disambiguation bound allows.
	ErrCollisionUnresolved = errors.New("archive collision unresolved")

	// ErrLocalIOFailure covers local rename/stat errors during archiving.
	ErrLocalIOFailure = errors.New("local io failure")
)

// retryable reports whether a transfer error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure) || errors.Is(err, ErrRemoteIOFailure)
}
