package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

var (
	ErrTransactionRejectedByUser = errors.New("transaction rejected by user")
	ErrTransactionFailed         = errors.New("transaction failed")
)

// OutcomeStatus is the final state of one submitted transaction
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Outcome is what a signer reports for one transaction of a plan
type Outcome struct {
	TxHash string        `json:"tx_hash"`
	Status OutcomeStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// Signer signs and submits transactions in order. Implementations live
// outside this module (browser wallets, key stores); the engine only
// depends on this boundary.
type Signer interface {
	SignAndSendTransactions(ctx context.Context, txs []models.Transaction) ([]Outcome, error)
}

// rejectionPhrases are the ways wallets phrase a user-declined signature
var rejectionPhrases = []string{
	"user rejected",
	"user cancelled",
	"user canceled",
	"user denied",
	"rejected by user",
	"request rejected",
	"request was denied",
	"denied by user",
	"closed the window",
	"window closed",
}

// executionMarkers appear only in errors produced by the chain itself
var executionMarkers = []string{
	"smart contract panicked",
	"executionerror",
	"functioncallerror",
	"actionerror",
}

// IsUserRejection reports whether msg looks like a declined signature.
// Errors raised by on-chain execution never count, whatever they say.
func IsUserRejection(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range executionMarkers {
		if strings.Contains(m, marker) {
			return false
		}
	}
	for _, p := range rejectionPhrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

// Classify maps a signer error to ErrTransactionRejectedByUser or
// ErrTransactionFailed, keeping the original message.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransactionRejectedByUser) || errors.Is(err, ErrTransactionFailed) {
		return err
	}
	if errors.Is(err, context.Canceled) || IsUserRejection(err.Error()) {
		return fmt.Errorf("%w: %v", ErrTransactionRejectedByUser, err)
	}
	return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
}

// ClassifyOutcomes returns the first failure among outcomes, classified.
// A short list means the signer stopped before submitting everything.
func ClassifyOutcomes(outcomes []Outcome, expected int) error {
	for i, o := range outcomes {
		if o.Status == OutcomeSuccess {
			if err := ValidateTxHash(o.TxHash); err != nil {
				return fmt.Errorf("%w: transaction %d: %v", ErrTransactionFailed, i, err)
			}
			continue
		}
		msg := o.Error
		if msg == "" {
			msg = "unknown failure"
		}
		if IsUserRejection(msg) {
			return fmt.Errorf("%w: transaction %d: %s", ErrTransactionRejectedByUser, i, msg)
		}
		return fmt.Errorf("%w: transaction %d: %s", ErrTransactionFailed, i, msg)
	}
	if len(outcomes) < expected {
		return fmt.Errorf("%w: %d of %d transactions reported", ErrTransactionFailed, len(outcomes), expected)
	}
	return nil
}

// TxHashes returns the hashes of successful outcomes
func TxHashes(outcomes []Outcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.TxHash != "" {
			out = append(out, o.TxHash)
		}
	}
	return out
}
