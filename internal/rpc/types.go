package rpc

import (
	"encoding/json"
	"fmt"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Name    string      `json:"name"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Cause   *ErrorCause `json:"cause"`
}

// ErrorCause carries the structured reason nearcore attaches to handler errors.
type ErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info"`
}

func (e *RPCError) Error() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Name)
	}
	return e.Message
}

// ViewError is returned when the contract itself failed while executing a
// view call (panics, missing methods).
type ViewError struct {
	Contract string
	Method   string
	Message  string
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Contract, e.Method, e.Message)
}

// ByteArray decodes the JSON array of integers nearcore uses for raw bytes.
type ByteArray []byte

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte array: value %d at %d out of range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// CallResult is the result of a call_function query
type CallResult struct {
	Result      ByteArray `json:"result"`
	Logs        []string  `json:"logs"`
	BlockHeight uint64    `json:"block_height"`
	BlockHash   string    `json:"block_hash"`
	Error       string    `json:"error,omitempty"`
}

// QueryResponse is the response envelope of the query method
type QueryResponse struct {
	Result *CallResult `json:"result"`
	Error  *RPCError   `json:"error"`
}
