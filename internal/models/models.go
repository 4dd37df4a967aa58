package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/shopspring/decimal"
)

// Transaction is the local record of one payin or payout attempt with the gateway partner.
type Transaction struct {
	ID     string          `json:"txn_id"`
	Kind   domain.Kind     `json:"kind"`
	Amount decimal.Decimal `json:"amount"`

	// Payout counterparty.
	BeneficiaryName string `json:"beneficiary_name,omitempty"`
	AccountNumber   string `json:"account_number,omitempty"`
	IFSCCode        string `json:"ifsc_code,omitempty"`

	// Payin counterparty.
	PayerName   string `json:"name,omitempty"`
	PayerEmail  string `json:"email,omitempty"`
	PayerMobile string `json:"mobile,omitempty"`

	Status domain.Status `json:"status"`
	// ExternalID is the gateway-assigned order id; set once, used to match webhooks.
	ExternalID          string          `json:"gateway_order_id,omitempty"`
	GatewayName         string          `json:"gateway_name"`
	GatewayResponse     json.RawMessage `json:"gateway_response,omitempty"`
	SettlementReference string          `json:"utr,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the raw payload buffer.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.GatewayResponse != nil {
		c.GatewayResponse = append(json.RawMessage(nil), t.GatewayResponse...)
	}
	return &c
}
