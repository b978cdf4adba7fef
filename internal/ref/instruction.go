package ref

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// SwapAction is one hop of the exchange's ft_transfer_call swap message
type SwapAction struct {
	PoolID       uint64 `json:"pool_id"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
}

type swapMsg struct {
	Force   int          `json:"force"`
	Actions []SwapAction `json:"actions"`
}

// Gas and deposit amounts attached to built calls. Zero-value fields fall
// back to the defaults in constants.
type CallCosts struct {
	StorageDepositGas string
	NearDepositGas    string
	FtTransferCallGas string
	StorageDepositFT  string
}

func (c CallCosts) withDefaults() CallCosts {
	if c.StorageDepositGas == "" {
		c.StorageDepositGas = constants.GasStorageDeposit
	}
	if c.NearDepositGas == "" {
		c.NearDepositGas = constants.GasNearDeposit
	}
	if c.FtTransferCallGas == "" {
		c.FtTransferCallGas = constants.GasFtTransferCall
	}
	if c.StorageDepositFT == "" {
		c.StorageDepositFT = constants.DepositStorageFT
	}
	return c
}

// BuildStorageDepositCall registers accountID on a NEP-145 contract
func BuildStorageDepositCall(accountID string, costs CallCosts) (models.FunctionCall, error) {
	costs = costs.withDefaults()
	return newCall(constants.MethodStorageDeposit, map[string]interface{}{
		"registration_only": true,
		"account_id":        accountID,
	}, costs.StorageDepositGas, costs.StorageDepositFT)
}

// BuildExchangeStorageDepositCall registers accountID on the exchange itself
func BuildExchangeStorageDepositCall(accountID string) (models.FunctionCall, error) {
	return newCall(constants.MethodStorageDeposit, map[string]interface{}{
		"registration_only": false,
		"account_id":        accountID,
	}, constants.GasStorageDeposit, constants.DepositStorageExchange)
}

// BuildNearDepositCall wraps native NEAR into wNEAR
func BuildNearDepositCall(amountIn *big.Int, costs CallCosts) (models.FunctionCall, error) {
	costs = costs.withDefaults()
	if amountIn == nil || amountIn.Sign() <= 0 {
		return models.FunctionCall{}, fmt.Errorf("near_deposit amount must be > 0")
	}
	return newCall(constants.MethodNearDeposit, map[string]interface{}{},
		costs.NearDepositGas, amountIn.String())
}

// BuildSwapCall transfers amountIn of the input token to the exchange with a
// swap message so the exchange executes the actions on receipt.
func BuildSwapCall(exchange string, actions []SwapAction, amountIn *big.Int, costs CallCosts) (models.FunctionCall, error) {
	costs = costs.withDefaults()
	if len(actions) == 0 {
		return models.FunctionCall{}, fmt.Errorf("swap needs at least one action")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return models.FunctionCall{}, fmt.Errorf("swap amount must be > 0")
	}

	msg, err := json.Marshal(swapMsg{Force: 0, Actions: actions})
	if err != nil {
		return models.FunctionCall{}, fmt.Errorf("failed to marshal swap msg: %w", err)
	}
	return newCall(constants.MethodFtTransferCall, map[string]interface{}{
		"receiver_id": exchange,
		"amount":      amountIn.String(),
		"msg":         string(msg),
	}, costs.FtTransferCallGas, constants.DepositOneYocto)
}

// BuildDepositCall moves tokens into the caller's exchange balance, the first
// step of adding liquidity.
func BuildDepositCall(exchange string, amountIn *big.Int) (models.FunctionCall, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return models.FunctionCall{}, fmt.Errorf("deposit amount must be > 0")
	}
	return newCall(constants.MethodFtTransferCall, map[string]interface{}{
		"receiver_id": exchange,
		"amount":      amountIn.String(),
		"msg":         "",
	}, constants.GasLiquidityDeposit, constants.DepositOneYocto)
}

// BuildAddLiquidityCall adds the deposited amounts to poolID
func BuildAddLiquidityCall(poolID uint64, amounts, minAmounts []*big.Int) (models.FunctionCall, error) {
	args := map[string]interface{}{
		"pool_id": poolID,
		"amounts": bigStrings(amounts),
	}
	if len(minAmounts) > 0 {
		args["min_amounts"] = bigStrings(minAmounts)
	}
	return newCall(constants.MethodAddLiquidity, args, constants.GasAddLiquidity, constants.DepositLPStorage)
}

// BuildRemoveLiquidityCall burns shares for at least minAmounts
func BuildRemoveLiquidityCall(poolID uint64, shares *big.Int, minAmounts []*big.Int) (models.FunctionCall, error) {
	if shares == nil || shares.Sign() <= 0 {
		return models.FunctionCall{}, ErrInvalidShares
	}
	return newCall(constants.MethodRemoveLiquidity, map[string]interface{}{
		"pool_id":     poolID,
		"shares":      shares.String(),
		"min_amounts": bigStrings(minAmounts),
	}, constants.GasRemoveLiquidity, constants.DepositOneYocto)
}

// BuildWithdrawCall pulls tokenID out of the caller's exchange balance
func BuildWithdrawCall(tokenID string, amt *big.Int) (models.FunctionCall, error) {
	if amt == nil || amt.Sign() <= 0 {
		return models.FunctionCall{}, fmt.Errorf("withdraw amount must be > 0")
	}
	return newCall(constants.MethodWithdraw, map[string]interface{}{
		"token_id":   tokenID,
		"amount":     amt.String(),
		"unregister": false,
	}, constants.GasWithdraw, constants.DepositOneYocto)
}

func newCall(method string, args interface{}, gas, deposit string) (models.FunctionCall, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return models.FunctionCall{}, fmt.Errorf("failed to marshal %s args: %w", method, err)
	}
	return models.FunctionCall{
		MethodName: method,
		Args:       raw,
		Gas:        gas,
		Deposit:    deposit,
	}, nil
}

func bigStrings(vals []*big.Int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}
