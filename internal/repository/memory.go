package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"go.uber.org/zap"
)

// MemoryRepository keeps records in process memory. When opened with a
// snapshot path, the whole collection is loaded at start and rewritten after
// every mutation. Snapshot write failures are logged and the repository keeps
// serving from memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.Transaction
	byExternal map[string]string
	order      []string

	path     string
	degraded atomic.Bool
	logger   *zap.Logger
}

type snapshot struct {
	Transactions []*models.Transaction `json:"transactions"`
	// Payouts is the legacy key written by earlier deployments.
	Payouts []*models.Transaction `json:"payouts,omitempty"`
}

func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRepository{
		byID:       make(map[string]*models.Transaction),
		byExternal: make(map[string]string),
		logger:     logger,
	}
}

// OpenFileRepository loads the snapshot at path, if present, and persists to it afterwards.
func OpenFileRepository(path string, logger *zap.Logger) (*MemoryRepository, error) {
	r := NewMemoryRepository(logger)
	r.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if len(raw) == 0 {
		return r, nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	records := append(snap.Transactions, snap.Payouts...)
	for _, tx := range records {
		if tx == nil || tx.ID == "" {
			continue
		}
		if _, exists := r.byID[tx.ID]; exists {
			continue
		}
		if tx.Kind == "" {
			tx.Kind = domain.KindPayout
		}
		r.insertLocked(tx)
	}
	r.logger.Info("transaction snapshot loaded", zap.String("path", path), zap.Int("records", len(r.order)))
	return r, nil
}

// Degraded reports whether the last snapshot write failed.
func (r *MemoryRepository) Degraded() bool {
	return r.degraded.Load()
}

func (r *MemoryRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := validateNew(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[tx.ID]; exists {
		return ErrDuplicateID
	}
	if tx.ExternalID != "" {
		if _, taken := r.byExternal[tx.ExternalID]; taken {
			return ErrExternalIDConflict
		}
	}
	r.insertLocked(tx.Clone())
	r.persistLocked()
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Clone(), nil
}

func (r *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, fn MutateFunc) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := applyMutation(current, fn)
	if err != nil {
		return nil, err
	}
	if next.ExternalID != "" && current.ExternalID == "" {
		if owner, taken := r.byExternal[next.ExternalID]; taken && owner != id {
			return nil, ErrExternalIDConflict
		}
		r.byExternal[next.ExternalID] = id
	}
	r.byID[id] = next
	r.persistLocked()
	return next.Clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Transaction, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.byID[r.order[i]].Clone())
	}
	// Later inserts win ties on created_at.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) insertLocked(tx *models.Transaction) {
	r.byID[tx.ID] = tx
	r.order = append(r.order, tx.ID)
	if tx.ExternalID != "" {
		r.byExternal[tx.ExternalID] = tx.ID
	}
}

func (r *MemoryRepository) persistLocked() {
	if r.path == "" {
		return
	}
	snap := snapshot{Transactions: make([]*models.Transaction, 0, len(r.order))}
	for _, id := range r.order {
		snap.Transactions = append(snap.Transactions, r.byID[id])
	}
	if err := writeSnapshot(r.path, snap); err != nil {
		if !r.degraded.Swap(true) {
			r.logger.Warn("transaction snapshot write failed, continuing in memory", zap.String("path", r.path), zap.Error(err))
		}
		return
	}
	if r.degraded.Swap(false) {
		r.logger.Info("transaction snapshot writes recovered", zap.String("path", r.path))
	}
}

func writeSnapshot(path string, snap snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".transactions-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
