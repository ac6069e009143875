/*
Package waiter provides transaction confirmation awaiting functionality.

Submitting a transaction only guarantees it has been handed to the network,
the caller has to wait for a receipt before relying on its effects. Waiter
does that either via periodic receipt polls or, when the RPC client supports
subscriptions, via new block header notifications with a fallback to polling.
No timeout of its own is enforced: awaiting ends with a receipt or with the
given context expiring.
*/
package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thesishub/thesishub-go/pkg/ethrpc"
	"github.com/thesishub/thesishub-go/pkg/rpcclient"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// PollingWaiterRetryCount is a threshold for a number of subsequent failed
// attempts to get a receipt from the RPC server for PollingWaiter. If it
// fails to retrieve a receipt PollingWaiterRetryCount times in a row then
// the awaiting attempt is considered to be failed and an error is returned.
const PollingWaiterRetryCount = 3

// DefaultPollTime is the period between receipt polls used when the waiter
// is created with a zero poll interval.
const DefaultPollTime = 4 * time.Second

var (
	// ErrExecutionReverted is returned when the awaited transaction was
	// included in a block, but its execution ended in failure.
	ErrExecutionReverted = errors.New("transaction execution reverted")
	// ErrContextDone is returned when the awaiting context has been done
	// in the middle of the awaiting process and no result was received yet.
	ErrContextDone = errors.New("waiter context done")
)

type (
	// Waiter is an interface providing transaction awaiting functionality.
	Waiter interface {
		// Wait allows to wait until a transaction is accepted to the chain.
		// It can be used as a wrapper for a submission call and accepts the
		// transaction hash and an error. It returns the receipt of the
		// confirmed transaction; a receipt with failed status yields both
		// the receipt and ErrExecutionReverted.
		Wait(ctx context.Context, h util.Hash, err error) (*ethrpc.Receipt, error)
	}

	// RPCPollingWaiter is an interface that enables transaction awaiting
	// functionality based on periodical receipt polls.
	RPCPollingWaiter interface {
		// Context should return the RPC client context to be able to
		// gracefully shut down all running processes (if so).
		Context() context.Context
		GetTransactionReceipt(h util.Hash) (*ethrpc.Receipt, error)
	}

	// RPCEventWaiter is an interface that enables improved transaction
	// awaiting functionality based on websocket header notifications. It
	// contains RPCPollingWaiter under the hood and the waiter built on it
	// falls back to polling when subscriptions fail.
	RPCEventWaiter interface {
		RPCPollingWaiter

		SubscribeNewHeads(rcvr chan<- *ethrpc.Head) (string, error)
		Unsubscribe(id string) error
	}
)

// PollingWaiter is a polling-based Waiter.
type PollingWaiter struct {
	polling  RPCPollingWaiter
	pollTime time.Duration
}

// EventWaiter is a websocket-based Waiter.
type EventWaiter struct {
	ws      RPCEventWaiter
	polling Waiter
}

// New creates a Waiter instance. It can be either websocket-based or
// polling-based depending on the capabilities of the given client.
func New(ra RPCPollingWaiter, pollTime time.Duration) Waiter {
	if eventW, ok := ra.(RPCEventWaiter); ok {
		return &EventWaiter{
			ws: eventW,
			polling: &PollingWaiter{
				polling:  eventW,
				pollTime: pollTime,
			},
		}
	}
	return NewPollingWaiter(ra, pollTime)
}

// NewPollingWaiter creates an instance of Waiter supporting poll-based
// transaction awaiting with the given poll interval (DefaultPollTime when
// non-positive).
func NewPollingWaiter(waiter RPCPollingWaiter, pollTime time.Duration) *PollingWaiter {
	if pollTime <= 0 {
		pollTime = DefaultPollTime
	}
	return &PollingWaiter{
		polling:  waiter,
		pollTime: pollTime,
	}
}

// Wait implements the Waiter interface.
func (w *PollingWaiter) Wait(ctx context.Context, h util.Hash, err error) (*ethrpc.Receipt, error) {
	if err != nil {
		return nil, err
	}
	var failedAttempt int
	timer := time.NewTicker(w.pollTime)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			rcpt, err := w.polling.GetTransactionReceipt(h)
			if err != nil {
				if errors.Is(err, rpcclient.ErrReceiptNotFound) {
					failedAttempt = 0
					continue // Not accepted yet, keep polling.
				}
				failedAttempt++
				if failedAttempt > PollingWaiterRetryCount {
					return nil, fmt.Errorf("failed to retrieve receipt: %w", err)
				}
				continue
			}
			return checkReceipt(rcpt)
		case <-w.polling.Context().Done():
			return nil, fmt.Errorf("%w: %v", ErrContextDone, w.polling.Context().Err())
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextDone, ctx.Err())
		}
	}
}

// NewEventWaiter creates an instance of Waiter supporting websocket
// event-based transaction awaiting. EventWaiter contains a PollingWaiter
// under the hood and falls back to polling when subscription-based awaiting
// fails.
func NewEventWaiter(waiter RPCEventWaiter, pollTime time.Duration) *EventWaiter {
	return &EventWaiter{
		ws:      waiter,
		polling: NewPollingWaiter(waiter, pollTime),
	}
}

// Wait implements the Waiter interface.
func (w *EventWaiter) Wait(ctx context.Context, h util.Hash, err error) (res *ethrpc.Receipt, waitErr error) {
	if err != nil {
		return nil, err
	}
	hRcvr := make(chan *ethrpc.Head, 2)
	headsID, err := w.ws.SubscribeNewHeads(hRcvr)
	if err != nil {
		// Falling back to a poll-based waiter.
		return w.polling.Wait(ctx, h, nil)
	}
	defer func() {
		err := w.ws.Unsubscribe(headsID)
		if err != nil && waitErr == nil {
			waitErr = fmt.Errorf("failed to unsubscribe from headers (id: %s): %w", headsID, err)
		}
		// Drain potentially in-flight events to unblock the reader.
	drainLoop:
		for {
			select {
			case <-hRcvr:
			default:
				break drainLoop
			}
		}
	}()

	// There is a potential race between submission and subscription, so do
	// a receipt check once _after_ the subscription.
	rcpt, err := w.ws.GetTransactionReceipt(h)
	if err == nil {
		return checkReceipt(rcpt)
	}

	for {
		select {
		case _, ok := <-hRcvr:
			if !ok {
				// Connection lost, retry with the poll-based waiter.
				return w.polling.Wait(ctx, h, nil)
			}
			rcpt, err := w.ws.GetTransactionReceipt(h)
			if err != nil {
				if errors.Is(err, rpcclient.ErrReceiptNotFound) {
					continue
				}
				return nil, fmt.Errorf("failed to retrieve receipt: %w", err)
			}
			return checkReceipt(rcpt)
		case <-w.ws.Context().Done():
			return nil, fmt.Errorf("%w: %v", ErrContextDone, w.ws.Context().Err())
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextDone, ctx.Err())
		}
	}
}

func checkReceipt(rcpt *ethrpc.Receipt) (*ethrpc.Receipt, error) {
	if !rcpt.Succeeded() {
		return rcpt, ErrExecutionReverted
	}
	return rcpt, nil
}
