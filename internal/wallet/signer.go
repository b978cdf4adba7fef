package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	projectrpc "github.com/aman-zulfiqar/ref-swap-engine/internal/rpc"
)

// NEAR account ids: 2-64 chars of lowercase alphanumerics separated by
// single '.', '-' or '_'. Implicit accounts are 64 hex chars and match too.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidateAccountID checks a NEAR account id
func ValidateAccountID(id string) error {
	if len(id) < 2 || len(id) > 64 {
		return fmt.Errorf("account id %q: length must be 2..64", id)
	}
	if !accountIDPattern.MatchString(id) {
		return fmt.Errorf("account id %q: invalid characters", id)
	}
	return nil
}

// ValidateTxHash checks that hash is a base58 encoded 32-byte digest
func ValidateTxHash(hash string) error {
	raw, err := base58.Decode(strings.TrimSpace(hash))
	if err != nil {
		return fmt.Errorf("tx hash %q: %w", hash, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("tx hash %q: expected 32 bytes, got %d", hash, len(raw))
	}
	return nil
}

// StatusChecker confirms signer-reported transactions against the chain
type StatusChecker struct {
	rpc *projectrpc.Client
}

func NewStatusChecker(rpc *projectrpc.Client) *StatusChecker {
	return &StatusChecker{rpc: rpc}
}

type executionStatus struct {
	SuccessValue     *string         `json:"SuccessValue"`
	SuccessReceiptID *string         `json:"SuccessReceiptId"`
	Failure          json.RawMessage `json:"Failure"`
}

type receiptOutcome struct {
	ID      string `json:"id"`
	Outcome struct {
		ExecutorID string          `json:"executor_id"`
		Status     executionStatus `json:"status"`
	} `json:"outcome"`
}

type txStatusResponse struct {
	Result *struct {
		Status          executionStatus  `json:"status"`
		ReceiptsOutcome []receiptOutcome `json:"receipts_outcome"`
	} `json:"result"`
	Error *projectrpc.RPCError `json:"error"`
}

// Outcome fetches the final execution outcome of txHash. A transaction whose
// top-level status succeeded still fails when any receipt failed, which is
// how a swap below min_amount_out surfaces.
func (s *StatusChecker) Outcome(ctx context.Context, txHash, senderID string) (*Outcome, error) {
	if err := ValidateTxHash(txHash); err != nil {
		return nil, err
	}

	params := map[string]any{
		"tx_hash":           txHash,
		"sender_account_id": senderID,
		"wait_until":        "FINAL",
	}

	var resp txStatusResponse
	if err := s.rpc.Call(ctx, "tx", params, &resp); err != nil {
		return nil, fmt.Errorf("tx status RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("tx %s: empty status", txHash)
	}

	out := &Outcome{TxHash: txHash, Status: OutcomeSuccess}
	if len(resp.Result.Status.Failure) > 0 && string(resp.Result.Status.Failure) != "null" {
		out.Status = OutcomeFailure
		out.Error = string(resp.Result.Status.Failure)
		return out, nil
	}
	for _, r := range resp.Result.ReceiptsOutcome {
		f := r.Outcome.Status.Failure
		if len(f) > 0 && string(f) != "null" {
			out.Status = OutcomeFailure
			out.Error = fmt.Sprintf("receipt %s on %s: %s", r.ID, r.Outcome.ExecutorID, string(f))
			return out, nil
		}
	}
	return out, nil
}

// WaitOutcome polls Outcome until the node knows the transaction or timeout
// elapses.
func (s *StatusChecker) WaitOutcome(ctx context.Context, txHash, senderID string, timeout time.Duration) (*Outcome, error) {
	if err := ValidateTxHash(txHash); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	backoff := 500 * time.Millisecond
	maxBackoff := 4 * time.Second

	lastErr := fmt.Errorf("no status received")
	for time.Now().Before(deadline) {
		out, err := s.Outcome(ctx, txHash, senderID)
		if err == nil {
			return out, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("transaction status timeout after %v: %w", timeout, lastErr)
}
