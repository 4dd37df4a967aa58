package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrTimeout          = errors.New("gateway request timed out")
	ErrMalformedPayload = errors.New("gateway returned a malformed response")
)

// Request carries everything the partner needs to open a payin or payout order.
type Request struct {
	TransactionID string
	Amount        decimal.Decimal

	BeneficiaryName string
	AccountNumber   string
	IFSCCode        string

	PayerName   string
	PayerEmail  string
	PayerMobile string
}

// Result is the normalized outcome of one gateway call. Clients never return
// Go errors; transport faults are reported with Transport set.
type Result struct {
	Acknowledged bool
	ExternalID   string
	// Payload is the raw partner body when the partner answered.
	Payload json.RawMessage
	// Error is the raw error payload for rejected or failed calls.
	Error     json.RawMessage
	Message   string
	Transport bool
}

// Raw returns the payload worth storing on the transaction record.
func (r Result) Raw() json.RawMessage {
	if len(r.Error) > 0 {
		return r.Error
	}
	return r.Payload
}

// Client opens orders with the gateway partner.
type Client interface {
	CreatePayout(ctx context.Context, req Request) Result
	CreatePayin(ctx context.Context, req Request) Result
}

// TransportFailure builds a Result for calls that never got a usable answer.
func TransportFailure(err error) Result {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = ErrTimeout.Error()
	}
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return Result{
		Error:     payload,
		Message:   msg,
		Transport: true,
	}
}
