/*
Package catalog fetches and normalizes the list of published theses.

Normalization is deterministic: given unchanged chain state, repeated reads
yield field-for-field identical results. The catalog keeps no cache, every
call is a fresh registry read.
*/
package catalog

import (
	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/encoding/wei"
	"github.com/thesishub/thesishub-go/pkg/hub"
	"github.com/thesishub/thesishub-go/pkg/util"
	"go.uber.org/zap"
)

// Registry is the subset of hub.Hub the catalog reads from.
type Registry interface {
	Theses() ([]hub.ThesisRecord, error)
	UserTokens(account util.Address) ([]hub.TokenHolding, error)
}

// Catalog reads the published thesis registry.
type Catalog struct {
	reg Registry
	log *zap.Logger
}

// Asset is one normalized catalog entry.
type Asset struct {
	TokenAddress util.Address
	Title        string
	CID          string
	Author       util.Address
	Description  string
	// Cost is the human-readable decimal ether price, CostWei the exact
	// on-chain amount it was derived from.
	Cost    string
	CostWei *uint256.Int
}

// New returns a Catalog over the given registry.
func New(reg Registry, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{reg: reg, log: log}
}

// Assets returns all published theses in registry order.
func (c *Catalog) Assets() ([]Asset, error) {
	records, err := c.reg.Theses()
	if err != nil {
		return nil, err
	}
	assets := make([]Asset, len(records))
	for i, rec := range records {
		assets[i] = normalize(rec)
	}
	return assets, nil
}

// UserAssets returns the subset of published theses the given account holds
// tokens of, i.e. the ones it purchased. The author's own theses are not
// implied here; authorship grants access without a holding and is checked
// via AuthoredBy.
func (c *Catalog) UserAssets(account util.Address) ([]Asset, error) {
	assets, err := c.Assets()
	if err != nil {
		return nil, err
	}
	holdings, err := c.reg.UserTokens(account)
	if err != nil {
		return nil, err
	}
	held := make(map[util.Address]bool, len(holdings))
	for _, h := range holdings {
		if h.Balance != nil && !h.Balance.IsZero() {
			held[h.TokenAddress] = true
		}
	}
	var owned []Asset
	for _, a := range assets {
		if held[a.TokenAddress] {
			owned = append(owned, a)
		}
	}
	return owned, nil
}

// AuthoredBy reports whether the given account is the asset's author.
// Addresses decode to canonical byte form, so the comparison is
// case-insensitive with respect to the original hex spelling.
func (a Asset) AuthoredBy(account util.Address) bool {
	return a.Author.Equals(account)
}

func normalize(rec hub.ThesisRecord) Asset {
	return Asset{
		TokenAddress: rec.TokenAddress,
		Title:        rec.Title,
		CID:          rec.CID,
		Author:       rec.Author,
		Description:  rec.Description,
		Cost:         wei.ToString(rec.CostWei),
		CostWei:      rec.CostWei,
	}
}
