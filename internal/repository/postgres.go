package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const transactionColumns = `id, kind, amount::text, beneficiary_name, account_number, ifsc_code,
		payer_name, payer_email, payer_mobile, status, external_id, gateway_name,
		gateway_response, settlement_reference, created_at, updated_at`

const (
	insertTransactionSQL = `
		INSERT INTO transactions (id, kind, amount, beneficiary_name, account_number, ifsc_code,
			payer_name, payer_email, payer_mobile, status, external_id, gateway_name,
			gateway_response, settlement_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	selectTransactionByIDSQL = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	selectTransactionForUpdateSQL = selectTransactionByIDSQL + ` FOR UPDATE`

	selectTransactionByExternalIDSQL = `SELECT ` + transactionColumns + ` FROM transactions WHERE external_id = $1`

	listTransactionsSQL = `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC, id DESC`

	updateTransactionSQL = `
		UPDATE transactions
		SET status = $2, external_id = $3, gateway_response = $4, settlement_reference = $5, updated_at = $6
		WHERE id = $1`
)

// PostgresRepository stores transactions in PostgreSQL. Updates lock the row
// with SELECT ... FOR UPDATE so concurrent reconcilers serialize per record.
type PostgresRepository struct {
	db     TxBeginner
	logger *zap.Logger
}

func NewPostgresRepository(db TxBeginner, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{db: db, logger: logger}
}

func (r *PostgresRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := validateNew(tx); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, insertTransactionSQL,
		tx.ID,
		string(tx.Kind),
		tx.Amount.String(),
		tx.BeneficiaryName,
		tx.AccountNumber,
		tx.IFSCCode,
		tx.PayerName,
		tx.PayerEmail,
		tx.PayerMobile,
		string(tx.Status),
		nullableText(tx.ExternalID),
		tx.GatewayName,
		nullableJSON(tx.GatewayResponse),
		nullableText(tx.SettlementReference),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, selectTransactionByIDSQL, id))
	if err != nil {
		return nil, wrapNotFound(err, "failed to get transaction")
	}
	return tx, nil
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	tx, err := scanTransaction(r.db.QueryRow(ctx, selectTransactionByExternalIDSQL, externalID))
	if err != nil {
		return nil, wrapNotFound(err, "failed to get transaction by external id")
	}
	return tx, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, fn MutateFunc) (*models.Transaction, error) {
	var updated *models.Transaction
	err := runInTx(ctx, r.db, func(q Querier) error {
		current, err := scanTransaction(q.QueryRow(ctx, selectTransactionForUpdateSQL, id))
		if err != nil {
			return wrapNotFound(err, "failed to lock transaction")
		}
		next, err := applyMutation(current, fn)
		if err != nil {
			return err
		}
		tag, err := q.Exec(ctx, updateTransactionSQL,
			id,
			string(next.Status),
			nullableText(next.ExternalID),
			nullableJSON(next.GatewayResponse),
			nullableText(next.SettlementReference),
			next.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrExternalIDConflict
			}
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := requireExactlyOne(tag, "update transaction"); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := r.db.Query(ctx, listTransactionsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx              models.Transaction
		kind, status    string
		amount          string
		externalID      *string
		settlementRef   *string
		gatewayResponse []byte
	)
	err := row.Scan(
		&tx.ID,
		&kind,
		&amount,
		&tx.BeneficiaryName,
		&tx.AccountNumber,
		&tx.IFSCCode,
		&tx.PayerName,
		&tx.PayerEmail,
		&tx.PayerMobile,
		&status,
		&externalID,
		&tx.GatewayName,
		&gatewayResponse,
		&settlementRef,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := domain.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	tx.Amount = parsed
	tx.Kind = domain.Kind(kind)
	tx.Status = domain.Status(status)
	if externalID != nil {
		tx.ExternalID = *externalID
	}
	if settlementRef != nil {
		tx.SettlementReference = *settlementRef
	}
	if len(gatewayResponse) > 0 {
		tx.GatewayResponse = json.RawMessage(gatewayResponse)
	}
	return &tx, nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
