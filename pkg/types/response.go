// Package types holds the JSON envelopes every HTTP response is wrapped in.
package types

// Envelope wraps a successful payload: {"data": ...}.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the body of every non-2xx response. Reason is the
// machine-readable failure mode (INSUFFICIENT_STOCK, PRICE_MISMATCH, ...)
// clients branch on; Message is for humans.
type APIError struct {
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
