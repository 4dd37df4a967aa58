package domain

import "strings"

// Kind distinguishes money collected from a payer from money disbursed to a beneficiary.
type Kind string

const (
	KindPayin  Kind = "payin"
	KindPayout Kind = "payout"
)

// Prefix is prepended to generated transaction ids, e.g. PAYOUT_.
func (k Kind) Prefix() string {
	return strings.ToUpper(string(k)) + "_"
}

func (k Kind) Valid() bool {
	return k == KindPayin || k == KindPayout
}

// ParseKind accepts kinds in any case; the empty string is not a kind.
func ParseKind(raw string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	return k, k.Valid()
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

const (
	// SettlementReferenceUnavailable is stored when a notification carries no bank reference.
	SettlementReferenceUnavailable = "N/A"

	DefaultGatewayName = "payraizen"
)
