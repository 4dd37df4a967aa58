package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/events"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/ayo6706/payment-bridge/internal/observability"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"go.uber.org/zap"
)

// ReconcileResult reports what a notification did to local state.
type ReconcileResult struct {
	Matched bool
	Applied bool
	// StatusChanged is false for duplicates and for unrecognized or refused statuses.
	StatusChanged bool
	TransactionID string
	ExternalID    string
	Status        domain.Status
}

// WebhookService applies gateway notifications to stored transactions.
type WebhookService struct {
	repo      repository.TransactionRepository
	publisher events.Publisher
	policy    TerminalPolicy
	hmacKey   []byte
	now       func() time.Time
	logger    *zap.Logger
}

// NewWebhookService creates a reconciler. An empty hmacKey disables signature checks.
func NewWebhookService(repo repository.TransactionRepository, publisher events.Publisher, policy TerminalPolicy, hmacKey string, logger *zap.Logger) *WebhookService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = TerminalOverwrite
	}
	return &WebhookService{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
		hmacKey:   []byte(hmacKey),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// SignatureRequired reports whether callers must present X-Webhook-Signature.
func (s *WebhookService) SignatureRequired() bool {
	return len(s.hmacKey) > 0
}

// VerifySignature checks "sha256=<hex>" over the raw body.
func (s *WebhookService) VerifySignature(payload []byte, signature string) bool {
	if !s.SignatureRequired() {
		return true
	}
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Reconcile matches a notification to its transaction by external id and
// records the reported outcome. An unknown external id is not an error.
func (s *WebhookService) Reconcile(ctx context.Context, body []byte) (*ReconcileResult, error) {
	n, err := ParseNotification(body)
	if err != nil {
		observability.IncrementWebhook("malformed")
		return nil, err
	}
	log := s.logger.With(zap.String("gateway_order_id", n.ExternalID), zap.String("reported_status", n.ReportedStatus))

	current, err := s.repo.GetByExternalID(ctx, n.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		observability.IncrementWebhook("unmatched")
		log.Warn("notification for unknown transaction")
		return &ReconcileResult{ExternalID: n.ExternalID}, nil
	}
	if err != nil {
		observability.IncrementWebhook("error")
		return nil, &RepositoryError{Op: "get_by_external_id", Err: err}
	}

	var previous domain.Status
	updated, err := s.repo.Update(ctx, current.ID, func(t *models.Transaction) error {
		previous = t.Status
		frozen := s.policy == TerminalImmutable && t.Status.Terminal()
		if n.Status != "" && canTransition(s.policy, t.Status, n.Status) {
			t.Status = n.Status
		}
		if !frozen && (n.SettlementReference != domain.SettlementReferenceUnavailable || t.SettlementReference == "") {
			t.SettlementReference = n.SettlementReference
		}
		t.GatewayResponse = n.Raw
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		observability.IncrementWebhook("error")
		log.Error("apply notification failed", zap.String("txn_id", current.ID), zap.Error(err))
		return nil, &RepositoryError{Op: "update", Err: err}
	}

	changed := previous != updated.Status
	if changed {
		observability.IncrementTransition(string(previous), string(updated.Status))
		if err := s.publisher.Publish(ctx, statusChangedEvent(previous, updated)); err != nil {
			log.Warn("publish transaction event failed", zap.Error(err))
		}
	} else if n.Status != "" && n.Status != previous {
		log.Warn("notification status not applied", zap.String("status", string(previous)))
	}
	observability.IncrementWebhook("applied")
	log.Info("notification applied",
		zap.String("txn_id", updated.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
		zap.String("utr", updated.SettlementReference))

	return &ReconcileResult{
		Matched:       true,
		Applied:       true,
		StatusChanged: changed,
		TransactionID: updated.ID,
		ExternalID:    n.ExternalID,
		Status:        updated.Status,
	}, nil
}

// AcknowledgePayin records a payin notification. Payin settlement has no
// local state to update yet, so the notification is forwarded as an event.
// Payer details stay out of the log.
func (s *WebhookService) AcknowledgePayin(ctx context.Context, body []byte) {
	observability.IncrementWebhook("payin")

	event := events.TransactionEvent{Type: events.TypePayinNotification, OccurredAt: s.now()}
	if n, err := ParseNotification(body); err == nil {
		event.ExternalID = n.ExternalID
		event.Status = string(n.Status)
		event.Payload = n.Raw
	}
	s.logger.Info("payin notification received",
		zap.String("gateway_order_id", event.ExternalID),
		zap.String("status", event.Status),
		zap.Int("body_bytes", len(body)))

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish payin notification failed", zap.Error(err))
	}
}
