package types

// SuccessEnvelope wraps every 2xx storefront response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire form of a failed order or payment request. Code
// mirrors the typed error codes, Details carries field-level validation
// output when present.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx response body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
