package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldError names one rejected input field and the rule it broke.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError reports bad caller input. Nothing was persisted or sent.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		switch f.Rule {
		case "required":
			parts = append(parts, f.Field+" is required")
		case "positive":
			parts = append(parts, f.Field+" must be a positive number")
		case "max_decimals":
			parts = append(parts, f.Field+" must have at most two decimal places")
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid (%s)", f.Field, f.Rule))
		}
	}
	if len(parts) == 0 {
		return "invalid input"
	}
	return strings.Join(parts, "; ")
}

// GatewayBusinessError means the partner answered and explicitly rejected the
// request. The transaction is recorded as failed with Payload preserved.
type GatewayBusinessError struct {
	TransactionID string
	Message       string
	Payload       json.RawMessage
}

func (e *GatewayBusinessError) Error() string {
	return fmt.Sprintf("gateway rejected %s: %s", e.TransactionID, e.Message)
}

// GatewayTransportError means no usable answer came back (timeout, refused
// connection, non-2xx, malformed body). The transaction is recorded as failed.
type GatewayTransportError struct {
	TransactionID string
	Message       string
	Payload       json.RawMessage
}

func (e *GatewayTransportError) Error() string {
	return fmt.Sprintf("gateway call for %s failed: %s", e.TransactionID, e.Message)
}

// MalformedNotificationError rejects a webhook body that carries no external id.
type MalformedNotificationError struct {
	Reason string
}

func (e *MalformedNotificationError) Error() string {
	return "malformed notification: " + e.Reason
}

// RepositoryError wraps a persistence failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
