package swapengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/storage"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

// Confirmer re-reads a transaction's final outcome from the chain
type Confirmer interface {
	WaitOutcome(ctx context.Context, txHash, senderID string, timeout time.Duration) (*wallet.Outcome, error)
}

// Executor drives a plan through signing and settles the attempt
type Executor struct {
	recorder  storage.SwapRecorder
	publisher events.Publisher
	confirmer Confirmer
	logger    *logrus.Logger

	confirmTimeout time.Duration
}

func NewExecutor(recorder storage.SwapRecorder, publisher events.Publisher, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{
		recorder:       recorder,
		publisher:      publisher,
		logger:         logger,
		confirmTimeout: 60 * time.Second,
	}
}

// WithConfirmer makes the executor verify signer-reported successes on chain
func (e *Executor) WithConfirmer(c Confirmer, timeout time.Duration) *Executor {
	if c != nil {
		e.confirmer = c
	}
	if timeout > 0 {
		e.confirmTimeout = timeout
	}
	return e
}

// Execute hands the attempt's plan to signer and settles whatever comes back
func (e *Executor) Execute(ctx context.Context, attempt *Attempt, signer wallet.Signer) (*ExecutionResult, error) {
	plan := attempt.Plan()
	if plan == nil || len(plan.Transactions) == 0 {
		return nil, fmt.Errorf("%w: attempt %s has no plan", ErrInvalidPlan, attempt.ID())
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is nil")
	}
	if err := e.begin(attempt, plan); err != nil {
		return nil, err
	}

	outcomes, signErr := signer.SignAndSendTransactions(ctx, plan.Transactions)
	return e.settle(ctx, attempt, plan, outcomes, signErr)
}

// Settle records outcomes reported by an external signer for a ready attempt
func (e *Executor) Settle(ctx context.Context, attempt *Attempt, outcomes []wallet.Outcome, signErr error) (*ExecutionResult, error) {
	plan := attempt.Plan()
	if plan == nil {
		return nil, fmt.Errorf("%w: attempt %s has no plan", ErrInvalidPlan, attempt.ID())
	}
	if attempt.State() == StateReady {
		if err := e.begin(attempt, plan); err != nil {
			return nil, err
		}
	}
	return e.settle(ctx, attempt, plan, outcomes, signErr)
}

func (e *Executor) begin(attempt *Attempt, plan *models.TransactionPlan) error {
	if len(plan.Transactions) > 1 {
		return attempt.Transition(StateRegistering)
	}
	return attempt.Transition(StateSwapping)
}

func (e *Executor) settle(ctx context.Context, attempt *Attempt, plan *models.TransactionPlan, outcomes []wallet.Outcome, signErr error) (*ExecutionResult, error) {
	start := time.Now()

	var outcomeErr error
	if signErr != nil {
		outcomeErr = wallet.Classify(signErr)
	} else {
		outcomeErr = wallet.ClassifyOutcomes(outcomes, len(plan.Transactions))
	}
	if outcomeErr == nil && e.confirmer != nil {
		outcomeErr = e.confirm(ctx, plan.AccountID, outcomes)
	}

	if attempt.State() == StateRegistering {
		if err := attempt.Transition(StateSwapping); err != nil && outcomeErr == nil {
			return nil, err
		}
	}

	result := &ExecutionResult{
		PlanID:   plan.ID,
		TxHashes: wallet.TxHashes(outcomes),
		Outcomes: outcomes,
	}

	var eventType events.Type
	switch {
	case outcomeErr == nil:
		if err := attempt.Transition(StateConfirmed); err != nil {
			return nil, err
		}
		eventType = events.SwapConfirmed
	case errors.Is(outcomeErr, wallet.ErrTransactionRejectedByUser):
		if err := attempt.Transition(StateCancelled); err != nil {
			return nil, err
		}
		result.Error = outcomeErr.Error()
		eventType = events.SwapCancelled
	default:
		if err := attempt.Fail(outcomeErr); err != nil {
			return nil, err
		}
		result.Error = outcomeErr.Error()
		eventType = events.SwapFailed
	}
	result.State = attempt.State()
	result.Duration = time.Since(start)

	fields := logrus.Fields{
		"plan":    plan.ID,
		"kind":    plan.Kind,
		"account": plan.AccountID,
		"state":   result.State,
		"txs":     strings.Join(result.TxHashes, ","),
	}
	if outcomeErr != nil {
		e.logger.WithFields(fields).WithError(outcomeErr).Warn("plan did not complete")
	} else {
		e.logger.WithFields(fields).Info("plan confirmed")
	}

	record := buildRecord(plan, result)
	if e.recorder != nil {
		if err := e.recorder.RecordSwap(ctx, record); err != nil {
			e.logger.WithError(err).WithField("plan", plan.ID).Warn("failed to record swap")
		}
	}
	if e.publisher != nil {
		poolID := ""
		if plan.Estimate != nil && len(plan.Estimate.Route) > 0 {
			poolID = plan.Estimate.Route[0].PoolID
		}
		ev := events.New(eventType, poolID, record)
		ev.PlanID = plan.ID
		if err := e.publisher.Publish(ev); err != nil {
			e.logger.WithError(err).WithField("plan", plan.ID).Debug("event not published")
		}
	}

	return result, outcomeErr
}

func (e *Executor) confirm(ctx context.Context, sender string, outcomes []wallet.Outcome) error {
	for _, o := range outcomes {
		got, err := e.confirmer.WaitOutcome(ctx, o.TxHash, sender, e.confirmTimeout)
		if err != nil {
			return fmt.Errorf("%w: confirm %s: %v", wallet.ErrTransactionFailed, o.TxHash, err)
		}
		if got.Status != wallet.OutcomeSuccess {
			return fmt.Errorf("%w: %s: %s", wallet.ErrTransactionFailed, o.TxHash, got.Error)
		}
	}
	return nil
}

func buildRecord(plan *models.TransactionPlan, result *ExecutionResult) *models.SwapRecord {
	rec := &models.SwapRecord{
		PlanID:    plan.ID,
		AccountID: plan.AccountID,
		Timestamp: time.Now().UTC(),
		Status:    string(result.State),
		TxHashes:  result.TxHashes,
		Error:     result.Error,
	}
	if est := plan.Estimate; est != nil {
		rec.TokenIn = est.TokenIn
		rec.TokenOut = est.TokenOut
		rec.Pair = est.TokenIn + "/" + est.TokenOut
		rec.AmountIn = est.AmountIn.String()
		rec.AmountOut = est.AmountOut.String()
		if est.MinReceived != nil {
			rec.MinReceived = est.MinReceived.String()
		}
		rec.PriceImpact = est.PriceImpact.String()
		if len(est.Route) > 0 {
			rec.PoolID = est.Route[0].PoolID
		}
	} else {
		rec.Pair = string(plan.Kind)
	}
	return rec
}
