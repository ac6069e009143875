package workflow

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/thesishub/thesishub-go/pkg/crypto/keys"
	"github.com/thesishub/thesishub-go/pkg/describe"
	"github.com/thesishub/thesishub-go/pkg/encoding/wei"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
	"github.com/thesishub/thesishub-go/pkg/hub"
	"github.com/thesishub/thesishub-go/pkg/metrics"
	"github.com/thesishub/thesishub-go/pkg/rpcclient/waiter"
	"github.com/thesishub/thesishub-go/pkg/storage"
	"github.com/thesishub/thesishub-go/pkg/util"
	"go.uber.org/zap"
)

// Input limits enforced before anything leaves the process.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 200
	MaxFileSize          = 10 << 20 // 10 MiB
)

// allowedMIME is the document type allow-list.
var allowedMIME = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"image/png":       true,
	"image/jpeg":      true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

type (
	// Registrar is the chain-side dependency of Publisher, satisfied by
	// hub.Hub.
	Registrar interface {
		AddThesis(from util.Address, salt util.Hash, rec hub.ThesisRecord) (util.Hash, error)
		ThesisAddedFromReceipt(rcpt *ethrpc.Receipt) (*hub.ThesisAdded, error)
	}

	// Uploader is the storage-side dependency of Publisher.
	Uploader interface {
		UploadEncrypted(ctx context.Context, name string, r io.Reader, signer keys.Signer) (*storage.UploadResult, error)
		ApplyAccessCondition(ctx context.Context, cid string, token util.Address) error
	}

	// Describer generates document descriptions, satisfied by
	// describe.Client.
	Describer interface {
		Describe(ctx context.Context, name, mime string, preview []byte) (string, error)
	}

	// PublishConfig contains Publisher dependencies. Describe is optional.
	PublishConfig struct {
		Hub      Registrar
		Storage  Uploader
		Waiter   waiter.Waiter
		Describe Describer
		Log      *zap.Logger
		Metrics  *metrics.Metrics
	}

	// Publisher uploads thesis documents and registers them on chain.
	Publisher struct {
		cfg PublishConfig
		log *zap.Logger
	}

	// Document is a publish request.
	Document struct {
		// Name and MIME describe the file, Size its byte length, Content
		// its payload.
		Name    string
		MIME    string
		Size    int64
		Content io.Reader
		// Title and Description go into the on-chain record as-is.
		Title       string
		Description string
		// Price is a human-readable decimal ether string, converted to
		// wei by truncation at submission time.
		Price string
	}

	// PublishResult reports a completed publish. A zero TokenAddress
	// together with a failed AccessCondition side effect means the
	// registration event couldn't be recovered: the thesis is on chain,
	// but its stored object has no access condition yet and needs an
	// operator to finish the job.
	PublishResult struct {
		CID             string
		TxHash          util.Hash
		TokenAddress    util.Address
		AccessCondition SideEffect
	}
)

// NewPublisher returns a Publisher using the given dependencies.
func NewPublisher(cfg PublishConfig) *Publisher {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{cfg: cfg, log: log}
}

// validate checks the document limits. Everything here fails before any
// network call is made.
func (doc *Document) validate() error {
	switch {
	case doc.Title == "":
		return fmt.Errorf("%w: title is empty", ErrInvalidInput)
	case utf8.RuneCountInString(doc.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, MaxTitleLength)
	case doc.Description == "":
		return fmt.Errorf("%w: description is empty", ErrInvalidInput)
	case utf8.RuneCountInString(doc.Description) > MaxDescriptionLength:
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	case doc.Size > MaxFileSize:
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, MaxFileSize)
	case !allowedMIME[doc.MIME]:
		return fmt.Errorf("%w: file type %q is not allowed", ErrInvalidInput, doc.MIME)
	}
	return nil
}

// Publish uploads the document encrypted, registers it on chain and then
// best-effort attaches the token-gated access condition to the stored
// object. Steps run strictly in order, the first critical failure stops
// the workflow. Upload and registration are separate systems with no
// atomicity between them: a registration failure leaves the uploaded
// object orphaned (harmless, it is encrypted and unreferenced).
func (p *Publisher) Publish(ctx context.Context, doc Document, author util.Address, signer keys.Signer) (*PublishResult, error) {
	if err := doc.validate(); err != nil {
		p.cfg.Metrics.Publish(metrics.ResultInvalid)
		return nil, err
	}
	price, err := wei.FromString(doc.Price)
	if err != nil {
		p.cfg.Metrics.Publish(metrics.ResultInvalid)
		return nil, fmt.Errorf("%w: bad price %q: %v", ErrInvalidInput, doc.Price, err)
	}

	log := p.log.With(zap.String("id", uuid.NewString()),
		zap.Stringer("author", author), zap.String("title", doc.Title))

	up, err := p.cfg.Storage.UploadEncrypted(ctx, doc.Name, doc.Content, signer)
	if err != nil {
		p.cfg.Metrics.Publish(metrics.ResultFailed)
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	log.Info("document uploaded", zap.String("cid", up.CID))

	var salt util.Hash
	if _, err := rand.Read(salt[:]); err != nil {
		p.cfg.Metrics.Publish(metrics.ResultFailed)
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	pending := pendingTx{ID: uuid.NewString(), CID: up.CID}
	txHash, err := p.cfg.Hub.AddThesis(author, salt, hub.ThesisRecord{
		Title:       doc.Title,
		CID:         up.CID,
		Author:      author,
		Description: doc.Description,
		CostWei:     price,
	})
	if err != nil {
		if ethrpc.IsUserRejected(err) {
			p.cfg.Metrics.Publish(metrics.ResultRejected)
			return nil, fmt.Errorf("registration rejected by signer: %w", err)
		}
		p.cfg.Metrics.Publish(metrics.ResultFailed)
		return nil, fmt.Errorf("failed to submit registration: %w", err)
	}
	pending.TxHash = txHash
	log.Info("registration submitted", zap.Stringer("tx", txHash))

	rcpt, err := p.cfg.Waiter.Wait(ctx, txHash, nil)
	if err != nil {
		p.cfg.Metrics.Publish(metrics.ResultFailed)
		return nil, fmt.Errorf("registration not confirmed: %w", err)
	}
	log.Info("registration confirmed")

	res := &PublishResult{CID: pending.CID, TxHash: pending.TxHash}
	ev, err := p.cfg.Hub.ThesisAddedFromReceipt(rcpt)
	if err != nil {
		// The thesis is registered, but without the event there is no
		// token address to gate on. The object stays reachable only via
		// the privileged credential until an operator remedies it.
		log.Error("cannot recover token address, access condition skipped",
			zap.String("cid", pending.CID), zap.Error(err))
		p.cfg.Metrics.SideEffectFailure(metrics.KindAccessCondition)
		p.cfg.Metrics.Publish(metrics.ResultOK)
		res.AccessCondition = SideEffect{Err: err}
		return res, nil
	}
	res.TokenAddress = ev.TokenAddress

	if err := p.cfg.Storage.ApplyAccessCondition(ctx, pending.CID, ev.TokenAddress); err != nil {
		log.Warn("failed to apply access condition",
			zap.String("cid", pending.CID), zap.Stringer("token", ev.TokenAddress), zap.Error(err))
		p.cfg.Metrics.SideEffectFailure(metrics.KindAccessCondition)
		res.AccessCondition = SideEffect{Err: err}
	} else {
		res.AccessCondition = SideEffect{Done: true}
	}
	p.cfg.Metrics.Publish(metrics.ResultOK)
	return res, nil
}

// SuggestDescription generates a description for the document via the
// configured description service. The fallback description is returned on
// generation failure; configure-time absence of the service is the only
// error.
func (p *Publisher) SuggestDescription(ctx context.Context, doc Document, preview []byte) (string, error) {
	if p.cfg.Describe == nil {
		return "", fmt.Errorf("%w: no client provided", describe.ErrNotConfigured)
	}
	return p.cfg.Describe.Describe(ctx, doc.Name, doc.MIME, preview)
}
