package swapengine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
)

// StorageChecker reads NEP-145 storage balances
type StorageChecker interface {
	StorageBalanceOf(ctx context.Context, contractID, accountID string) (*ref.StorageBalance, error)
}

// ResolvedRegistration describes whether an account can hold a token and the
// calls that would register it.
type ResolvedRegistration struct {
	Contract   string
	Registered bool
	CheckErr   error // set when the check failed and Registered was assumed false
	PreCalls   []models.FunctionCall
}

// RegistrationResolver checks storage registration on token contracts.
// A failed check is treated as "not registered": an extra deposit is refunded
// by registration_only, a missing one makes the swap fail.
type RegistrationResolver struct {
	storage StorageChecker
	costs   ref.CallCosts
	logger  *logrus.Logger
}

func NewRegistrationResolver(storage StorageChecker, costs ref.CallCosts, logger *logrus.Logger) *RegistrationResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RegistrationResolver{storage: storage, costs: costs, logger: logger}
}

func (r *RegistrationResolver) Resolve(ctx context.Context, contractID, accountID string) (*ResolvedRegistration, error) {
	if r == nil || r.storage == nil {
		return nil, fmt.Errorf("registration resolver: storage checker is nil")
	}

	res := &ResolvedRegistration{Contract: contractID}
	bal, err := r.storage.StorageBalanceOf(ctx, contractID, accountID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.CheckErr = fmt.Errorf("%w: %s on %s: %v", ErrRegistrationCheckFailed, accountID, contractID, err)
		r.logger.WithFields(logrus.Fields{
			"contract": contractID,
			"account":  accountID,
		}).WithError(err).Warn("storage registration check failed, assuming unregistered")
	} else if bal != nil {
		res.Registered = true
		return res, nil
	}

	call, err := ref.BuildStorageDepositCall(accountID, r.costs)
	if err != nil {
		return nil, err
	}
	res.PreCalls = []models.FunctionCall{call}
	return res, nil
}
