package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/catalog"
	"github.com/thesishub/thesishub-go/pkg/encoding/wei"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
	"github.com/thesishub/thesishub-go/pkg/metrics"
	"github.com/thesishub/thesishub-go/pkg/rpcclient/waiter"
	"github.com/thesishub/thesishub-go/pkg/util"
	"go.uber.org/zap"
)

type (
	// Marketplace is the chain-side dependency of Purchaser, satisfied by
	// hub.Hub.
	Marketplace interface {
		BuyToken(from, token util.Address, quantity, valueWei *uint256.Int) (util.Hash, error)
	}

	// Sharer is the storage-side dependency of Purchaser.
	Sharer interface {
		Share(ctx context.Context, cid string, recipient util.Address) error
	}

	// PurchaseConfig contains Purchaser dependencies.
	PurchaseConfig struct {
		Hub     Marketplace
		Storage Sharer
		Waiter  waiter.Waiter
		Log     *zap.Logger
		Metrics *metrics.Metrics
	}

	// Purchaser buys access to published theses. It is safe for concurrent
	// use; purchases of different theses may run in parallel, a second
	// purchase of the same thesis is rejected while the first one is in
	// flight.
	Purchaser struct {
		cfg PurchaseConfig
		log *zap.Logger

		mtx      sync.Mutex
		inflight map[util.Address]bool
	}

	// PurchaseResult reports a completed purchase. Share records the
	// outcome of the best-effort storage share grant; a failed share does
	// not undo the purchase, the payment transaction is the source of
	// truth.
	PurchaseResult struct {
		TxHash util.Hash
		Share  SideEffect
	}
)

// one is the quantity of thesis tokens a purchase buys: access is granted
// by any positive balance.
var one = uint256.NewInt(1)

// NewPurchaser returns a Purchaser using the given dependencies.
func NewPurchaser(cfg PurchaseConfig) *Purchaser {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Purchaser{
		cfg:      cfg,
		log:      log,
		inflight: make(map[util.Address]bool),
	}
}

// Buy purchases one unit of the thesis token, paying the asset's listed
// price, and then best-effort shares the stored document with the buyer.
// It blocks until the payment transaction confirms (or ctx is cancelled);
// an error means no purchase happened, a nil error means the payment is
// on chain regardless of the Share outcome.
func (p *Purchaser) Buy(ctx context.Context, asset catalog.Asset, buyer util.Address) (*PurchaseResult, error) {
	if asset.AuthoredBy(buyer) {
		p.cfg.Metrics.Purchase(metrics.ResultInvalid)
		return nil, fmt.Errorf("%w: authors already have access to their own theses", ErrInvalidInput)
	}
	value, err := wei.FromString(asset.Cost)
	if err != nil {
		p.cfg.Metrics.Purchase(metrics.ResultInvalid)
		return nil, fmt.Errorf("%w: bad price %q: %v", ErrInvalidInput, asset.Cost, err)
	}

	if !p.acquire(asset.TokenAddress) {
		return nil, ErrPurchasePending
	}
	defer p.release(asset.TokenAddress)

	pending := pendingTx{ID: uuid.NewString(), CID: asset.CID}
	log := p.log.With(zap.String("id", pending.ID),
		zap.Stringer("token", asset.TokenAddress), zap.Stringer("buyer", buyer))

	txHash, err := p.cfg.Hub.BuyToken(buyer, asset.TokenAddress, one, value)
	if err != nil {
		if ethrpc.IsUserRejected(err) {
			p.cfg.Metrics.Purchase(metrics.ResultRejected)
			return nil, fmt.Errorf("purchase rejected by signer: %w", err)
		}
		p.cfg.Metrics.Purchase(metrics.ResultFailed)
		return nil, fmt.Errorf("failed to submit purchase: %w", err)
	}
	pending.TxHash = txHash
	log.Info("purchase submitted", zap.Stringer("tx", txHash))

	if _, err := p.cfg.Waiter.Wait(ctx, txHash, nil); err != nil {
		p.cfg.Metrics.Purchase(metrics.ResultFailed)
		return nil, fmt.Errorf("purchase not confirmed: %w", err)
	}
	log.Info("purchase confirmed")

	res := &PurchaseResult{TxHash: pending.TxHash}
	if err := p.cfg.Storage.Share(ctx, pending.CID, buyer); err != nil {
		// The payment already settled on chain, losing the share grant
		// only costs the buyer a convenience. Record and move on.
		log.Warn("failed to share document with buyer", zap.String("cid", pending.CID), zap.Error(err))
		p.cfg.Metrics.SideEffectFailure(metrics.KindShare)
		res.Share = SideEffect{Err: err}
	} else {
		res.Share = SideEffect{Done: true}
	}
	p.cfg.Metrics.Purchase(metrics.ResultOK)
	return res, nil
}

func (p *Purchaser) acquire(token util.Address) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.inflight[token] {
		return false
	}
	p.inflight[token] = true
	return true
}

func (p *Purchaser) release(token util.Address) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	delete(p.inflight, token)
}
