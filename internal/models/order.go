package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	ErrEmptyOrder   = errors.New("missing JSON body")
	ErrInvalidOrder = errors.New("invalid JSON body")
)

// Order is an order payload as received from the client. The bridge never
// looks inside it; it is forwarded as compact JSON text.
type Order []byte

// ParseOrder accepts a non-empty JSON object or array and returns it with
// insignificant whitespace removed. Keys and values are kept as sent.
func ParseOrder(body []byte) (Order, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyOrder
	}

	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, ErrInvalidOrder
	}

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, ErrInvalidOrder
	}

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, ErrEmptyOrder
		}
	case []any:
		if len(v) == 0 {
			return nil, ErrEmptyOrder
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, ErrInvalidOrder
	}

	return Order(compact.Bytes()), nil
}

func (o Order) String() string {
	return string(o)
}

type OrderAccepted struct {
	Message string `json:"message"`
	Queued  bool   `json:"queued"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
