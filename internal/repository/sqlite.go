package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id                   TEXT PRIMARY KEY,
	kind                 TEXT NOT NULL,
	amount               TEXT NOT NULL,
	beneficiary_name     TEXT NOT NULL DEFAULT '',
	account_number       TEXT NOT NULL DEFAULT '',
	ifsc_code            TEXT NOT NULL DEFAULT '',
	payer_name           TEXT NOT NULL DEFAULT '',
	payer_email          TEXT NOT NULL DEFAULT '',
	payer_mobile         TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	external_id          TEXT,
	gateway_name         TEXT NOT NULL DEFAULT '',
	gateway_response     TEXT,
	settlement_reference TEXT,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	seq                  INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external_id ON transactions(external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
`

const sqliteColumns = `id, kind, amount, beneficiary_name, account_number, ifsc_code, payer_name, payer_email,
	payer_mobile, status, external_id, gateway_name, gateway_response, settlement_reference, created_at, updated_at`

// SQLiteRepository keeps transactions in a single-file SQLite database.
// Writes run in IMMEDIATE transactions so the update path holds the write lock
// between reading and writing a record.
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func OpenSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	logger.Info("sqlite transaction store opened", zap.String("path", path))
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := validateNew(tx); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+sqliteColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions))`,
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
		sqlNullString(tx.ExternalID),
		tx.GatewayName,
		sqlNullString(string(tx.GatewayResponse)),
		sqlNullString(tx.SettlementReference),
		formatTime(tx.CreatedAt),
		formatTime(tx.UpdatedAt),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM transactions WHERE id = ?`, id)
	return r.scanOne(row, "failed to get transaction")
}

func (r *SQLiteRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM transactions WHERE external_id = ?`, externalID)
	return r.scanOne(row, "failed to get transaction by external id")
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, fn MutateFunc) (*models.Transaction, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	current, err := r.scanOne(sqlTx.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM transactions WHERE id = ?`, id), "failed to read transaction")
	if err != nil {
		return nil, err
	}
	next, err := applyMutation(current, fn)
	if err != nil {
		return nil, err
	}
	res, err := sqlTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, external_id = ?, gateway_response = ?, settlement_reference = ?, updated_at = ?
		WHERE id = ?`,
		string(next.Status),
		sqlNullString(next.ExternalID),
		sqlNullString(string(next.GatewayResponse)),
		sqlNullString(next.SettlementReference),
		formatTime(next.UpdatedAt),
		id,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, ErrExternalIDConflict
		}
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return nil, fmt.Errorf("update transaction: expected 1 row affected, got %d", n)
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM transactions ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanSQLiteTransaction(rows)
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

func (r *SQLiteRepository) scanOne(row *sql.Row, msg string) (*models.Transaction, error) {
	tx, err := scanSQLiteTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return tx, nil
}

func scanSQLiteTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx                   models.Transaction
		kind, status, amount string
		createdAt, updatedAt string
		externalID           sql.NullString
		gatewayResponse      sql.NullString
		settlementRef        sql.NullString
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
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tx.Amount, err = domain.ParseAmount(amount); err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if tx.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	tx.Kind = domain.Kind(kind)
	tx.Status = domain.Status(status)
	tx.ExternalID = externalID.String
	tx.SettlementReference = settlementRef.String
	if gatewayResponse.Valid && gatewayResponse.String != "" {
		tx.GatewayResponse = json.RawMessage(gatewayResponse.String)
	}
	return &tx, nil
}

// formatTime uses a fixed-width UTC layout so lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
