package repository

import (
	"context"
	"errors"

	"github.com/ayo6706/payment-bridge/internal/models"
)

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrDuplicateID        = errors.New("transaction id already exists")
	ErrExternalIDConflict = errors.New("external id already set to a different value")
	ErrImmutableField     = errors.New("immutable transaction field modified")
	ErrInvalidStatus      = errors.New("invalid transaction status")
	ErrConcurrentUpdate   = errors.New("transaction modified concurrently")
)

// MutateFunc edits a private copy of the current record. Returning an error
// aborts the update and nothing is persisted.
type MutateFunc func(tx *models.Transaction) error

// TransactionRepository is the durable, queryable store of transaction records.
// Update is atomic per record: concurrent updates to one id are serialized and
// every caller observes the latest committed state.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*models.Transaction, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]*models.Transaction, error)
}

// applyMutation runs fn on a copy of current and checks the fields that must never change.
func applyMutation(current *models.Transaction, fn MutateFunc) (*models.Transaction, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkImmutable(current, next); err != nil {
		return nil, err
	}
	return next, nil
}

func checkImmutable(before, after *models.Transaction) error {
	if after.ID != before.ID ||
		after.Kind != before.Kind ||
		!after.Amount.Equal(before.Amount) ||
		after.BeneficiaryName != before.BeneficiaryName ||
		after.AccountNumber != before.AccountNumber ||
		after.IFSCCode != before.IFSCCode ||
		after.PayerName != before.PayerName ||
		after.PayerEmail != before.PayerEmail ||
		after.PayerMobile != before.PayerMobile ||
		!after.CreatedAt.Equal(before.CreatedAt) {
		return ErrImmutableField
	}
	if before.ExternalID != "" && after.ExternalID != before.ExternalID {
		return ErrExternalIDConflict
	}
	if !after.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func validateNew(tx *models.Transaction) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}
	if !tx.Kind.Valid() {
		return errors.New("transaction kind is invalid")
	}
	if !tx.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}
