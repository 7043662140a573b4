package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/riscvlabs/corechain/core/txpool"
	"github.com/riscvlabs/corechain/core/types"
)

// Handler dispatches JSON-RPC requests against a transaction pool.
type Handler struct {
	pool *txpool.Pool
}

// NewHandler builds a Handler over pool.
func NewHandler(pool *txpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// Dispatch routes req to the matching method and returns its response.
// The response always carries req.ID, so callers never need to thread
// it through separately.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "submit_transaction":
		return h.submitTransaction(req)
	case "get_block_template":
		return h.getBlockTemplate(req)
	case "pool_info":
		return h.poolInfo(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

type submitTransactionParams struct {
	Tx             types.Transaction `json:"tx"`
	Remote         bool              `json:"remote"`
	PeerID         string            `json:"peer_id"`
	DeclaredCycles uint64            `json:"declared_cycles"`
	HasDeclared    bool              `json:"has_declared"`
}

type submitTransactionResult struct {
	Hash string `json:"hash"`
	Kind string `json:"kind"`
}

func (h *Handler) submitTransaction(req Request) Response {
	var p submitTransactionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	source := txpool.Local
	if p.Remote {
		source = txpool.Remote
	}

	res := h.pool.Submit(txpool.SubmitRequest{
		Tx:             &p.Tx,
		Source:         source,
		PeerID:         p.PeerID,
		DeclaredCycles: p.DeclaredCycles,
		HasDeclared:    p.HasDeclared,
	})

	if res.Kind == txpool.Rejected {
		msg := "rejected"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return errResponse(req.ID, CodeRejected, msg)
	}

	return okResponse(req.ID, submitTransactionResult{
		Hash: p.Tx.Hash().Hex(),
		Kind: outcomeKindString(res.Kind),
	})
}

func outcomeKindString(k txpool.OutcomeKind) string {
	switch k {
	case txpool.Ok:
		return "ok"
	case txpool.Duplicated:
		return "duplicated"
	case txpool.OrphanAccepted:
		return "orphan_accepted"
	case txpool.Deferred:
		return "deferred"
	default:
		return "rejected"
	}
}

type getBlockTemplateParams struct {
	BytesLimit     uint64 `json:"bytes_limit"`
	ProposalsLimit int    `json:"proposals_limit"`
	MaxVersion     uint32 `json:"max_version"`
}

func (h *Handler) getBlockTemplate(req Request) Response {
	p := getBlockTemplateParams{BytesLimit: 1 << 20, ProposalsLimit: 12, MaxVersion: ^uint32(0)}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
	}
	tmpl := h.pool.GetBlockTemplate(p.BytesLimit, p.ProposalsLimit, p.MaxVersion)
	return okResponse(req.ID, tmpl)
}

func (h *Handler) poolInfo(req Request) Response {
	return okResponse(req.ID, h.pool.Info())
}
