package models

import (
	"math/big"
	"time"
)

// PoolKind tags the variant behind a Pool.
type PoolKind string

const (
	PoolKindSimple       PoolKind = "simple"
	PoolKindConcentrated PoolKind = "concentrated"
)

// PoolSource records which collaborator answered a pool read.
type PoolSource string

const (
	PoolSourceIndexer PoolSource = "indexer"
	PoolSourceRPC     PoolSource = "rpc"
)

// Pool is a read-only snapshot of one AMM pool. The concrete type is either
// *SimplePool or *ConcentratedPool.
type Pool interface {
	PoolID() string
	Kind() PoolKind
	TokenIDs() []string
	Snapshot() SnapshotMeta
}

// SnapshotMeta identifies a single fetch of pool state.
type SnapshotMeta struct {
	ID        string     `json:"id"`
	Source    PoolSource `json:"source"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// SimplePool is a constant-product pool on the exchange contract.
type SimplePool struct {
	ID          uint64       `json:"id"`
	Tokens      []string     `json:"token_account_ids"`
	Reserves    []*big.Int   `json:"amounts"`
	TotalShares *big.Int     `json:"shares_total_supply"`
	FeeBps      uint32       `json:"total_fee"`
	Meta        SnapshotMeta `json:"snapshot"`
}

func (p *SimplePool) PoolID() string         { return new(big.Int).SetUint64(p.ID).String() }
func (p *SimplePool) Kind() PoolKind         { return PoolKindSimple }
func (p *SimplePool) TokenIDs() []string     { return p.Tokens }
func (p *SimplePool) Snapshot() SnapshotMeta { return p.Meta }

// ReserveOf returns the reserve for tokenID and whether the token is in the pool.
func (p *SimplePool) ReserveOf(tokenID string) (*big.Int, int, bool) {
	for i, t := range p.Tokens {
		if t == tokenID && i < len(p.Reserves) {
			return p.Reserves[i], i, true
		}
	}
	return nil, -1, false
}

// ConcentratedPool is a discretized concentrated-liquidity pool. Its id has
// the form "token_x|token_y|fee".
type ConcentratedPool struct {
	ID           string       `json:"pool_id"`
	TokenX       string       `json:"token_x"`
	TokenY       string       `json:"token_y"`
	FeeBps       uint32       `json:"fee"`
	CurrentPoint int32        `json:"current_point"`
	Liquidity    *big.Int     `json:"liquidity"`
	TotalX       *big.Int     `json:"total_x"`
	TotalY       *big.Int     `json:"total_y"`
	Meta         SnapshotMeta `json:"snapshot"`
}

func (p *ConcentratedPool) PoolID() string         { return p.ID }
func (p *ConcentratedPool) Kind() PoolKind         { return PoolKindConcentrated }
func (p *ConcentratedPool) TokenIDs() []string     { return []string{p.TokenX, p.TokenY} }
func (p *ConcentratedPool) Snapshot() SnapshotMeta { return p.Meta }
