package ref

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
)

func TestBuildSwapCall_Message(t *testing.T) {
	call, err := BuildSwapCall("v2.ref-finance.near", []SwapAction{{
		PoolID:       79,
		TokenIn:      "wrap.near",
		TokenOut:     "token.near",
		AmountIn:     "10000000000000000000000000",
		MinAmountOut: "4960025399746002539",
	}}, bi("10000000000000000000000000"), CallCosts{})
	require.NoError(t, err)

	assert.Equal(t, constants.MethodFtTransferCall, call.MethodName)
	assert.Equal(t, constants.DepositOneYocto, call.Deposit)
	assert.Equal(t, constants.GasFtTransferCall, call.Gas)

	var args struct {
		ReceiverID string `json:"receiver_id"`
		Amount     string `json:"amount"`
		Msg        string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(call.Args, &args))
	assert.Equal(t, "v2.ref-finance.near", args.ReceiverID)
	assert.Equal(t, "10000000000000000000000000", args.Amount)
	assert.JSONEq(t, `{"force":0,"actions":[{"pool_id":79,"token_in":"wrap.near","token_out":"token.near",
		"amount_in":"10000000000000000000000000","min_amount_out":"4960025399746002539"}]}`, args.Msg)
}

func TestBuildSwapCall_Validation(t *testing.T) {
	_, err := BuildSwapCall("x", nil, big.NewInt(1), CallCosts{})
	assert.Error(t, err)
	_, err = BuildSwapCall("x", []SwapAction{{PoolID: 1}}, big.NewInt(0), CallCosts{})
	assert.Error(t, err)
}

func TestBuildStorageDepositCall(t *testing.T) {
	call, err := BuildStorageDepositCall("alice.near", CallCosts{StorageDepositGas: "1"})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodStorageDeposit, call.MethodName)
	assert.Equal(t, "1", call.Gas)
	assert.Equal(t, constants.DepositStorageFT, call.Deposit)
	assert.JSONEq(t, `{"registration_only":true,"account_id":"alice.near"}`, string(call.Args))
}

func TestBuildNearDepositCall(t *testing.T) {
	call, err := BuildNearDepositCall(big.NewInt(42), CallCosts{})
	require.NoError(t, err)
	assert.Equal(t, "42", call.Deposit)
	assert.JSONEq(t, `{}`, string(call.Args))

	_, err = BuildNearDepositCall(nil, CallCosts{})
	assert.Error(t, err)
}

func TestBuildLiquidityCalls(t *testing.T) {
	add, err := BuildAddLiquidityCall(79, []*big.Int{big.NewInt(10), big.NewInt(5)}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool_id":79,"amounts":["10","5"]}`, string(add.Args))

	rm, err := BuildRemoveLiquidityCall(79, big.NewInt(100), []*big.Int{big.NewInt(9), big.NewInt(4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool_id":79,"shares":"100","min_amounts":["9","4"]}`, string(rm.Args))

	_, err = BuildRemoveLiquidityCall(79, big.NewInt(0), nil)
	assert.ErrorIs(t, err, ErrInvalidShares)

	wd, err := BuildWithdrawCall("wrap.near", big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, constants.MethodWithdraw, wd.MethodName)
	assert.JSONEq(t, `{"token_id":"wrap.near","amount":"7","unregister":false}`, string(wd.Args))
}
