/*
Package workflow orchestrates the two multi-system ThesisHub operations:
purchasing access to a thesis and publishing a new one.

Both workflows are strictly sequential: every step runs only after the
previous one completed, there is no rollback and no automatic retry. The
on-chain transaction is the source of truth for the operation's outcome;
storage-level follow-ups (sharing the object with the buyer, attaching the
access condition) are best-effort and their failures are swallowed into a
tagged SideEffect on the result instead of failing the workflow — payment
already settled, only a convenience was lost.

Dependencies are injected through Config structs, nothing here reaches for
a shared global client.
*/
package workflow

import (
	"errors"

	"github.com/thesishub/thesishub-go/pkg/util"
)

var (
	// ErrInvalidInput is returned (wrapped) by validation failures caught
	// before anything is submitted to the chain or the storage network.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPurchasePending is returned when a purchase for the same thesis
	// is already in flight in this process.
	ErrPurchasePending = errors.New("purchase already pending for this thesis")
)

// SideEffect is the tagged outcome of a best-effort follow-up step. Done
// with a nil Err means the step ran; Err carries the swallowed failure
// otherwise. It never affects the encompassing workflow's result.
type SideEffect struct {
	Done bool
	Err  error
}

// pendingTx correlates a submitted-but-unconfirmed transaction with the
// content identifier awaiting post-confirmation handling. It is
// process-local and single-use: created on submission, read once by the
// continuation of the workflow that created it, then discarded. An
// interrupted process loses the correlation.
type pendingTx struct {
	ID     string
	TxHash util.Hash
	CID    string
}
