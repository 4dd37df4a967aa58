package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/events"
	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/ayo6706/payment-bridge/internal/observability"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IDGenerator hands out internal transaction ids.
type IDGenerator interface {
	New(kind domain.Kind) string
}

// PayoutInput is a merchant request to disburse funds to a bank account.
type PayoutInput struct {
	Amount          decimal.Decimal `json:"amount" validate:"-"`
	BeneficiaryName string          `json:"beneficiary_name" validate:"required"`
	AccountNumber   string          `json:"account_number" validate:"required"`
	IFSCCode        string          `json:"ifsc_code" validate:"required"`
}

// PayinInput is a merchant request to collect funds from a payer.
type PayinInput struct {
	Amount decimal.Decimal `json:"amount" validate:"-"`
	Name   string          `json:"name" validate:"required"`
	Email  string          `json:"email" validate:"required,email"`
	Mobile string          `json:"mobile" validate:"required"`
}

// CreateResult is returned when the gateway acknowledged the request.
type CreateResult struct {
	TransactionID string
	Kind          domain.Kind
	Status        domain.Status
	ExternalID    string
	// GatewayData is the partner's acknowledgement body, e.g. a payin intent.
	GatewayData json.RawMessage
}

// ListFilter narrows ListTransactions; zero values match everything.
type ListFilter struct {
	Kind   domain.Kind
	Status domain.Status
}

// TransactionService creates payins and payouts and drives them through
// their first gateway round trip.
type TransactionService struct {
	repo        repository.TransactionRepository
	gateway     gateway.Client
	ids         IDGenerator
	publisher   events.Publisher
	logger      *zap.Logger
	gatewayName string
	policy      TerminalPolicy
	// gatewayTimeout bounds the whole gateway round trip, including any wait for a pool slot.
	gatewayTimeout time.Duration
	now            func() time.Time
}

type Option func(*TransactionService)

func WithGatewayName(name string) Option {
	return func(s *TransactionService) {
		if name != "" {
			s.gatewayName = name
		}
	}
}

func WithTerminalPolicy(policy TerminalPolicy) Option {
	return func(s *TransactionService) { s.policy = policy }
}

func WithGatewayTimeout(d time.Duration) Option {
	return func(s *TransactionService) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func NewTransactionService(repo repository.TransactionRepository, gw gateway.Client, ids IDGenerator, publisher events.Publisher, logger *zap.Logger, opts ...Option) *TransactionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TransactionService{
		repo:           repo,
		gateway:        gw,
		ids:            ids,
		publisher:      publisher,
		logger:         logger,
		gatewayName:    domain.DefaultGatewayName,
		policy:         TerminalOverwrite,
		gatewayTimeout: gateway.DefaultTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePayout validates in, records a pending payout and asks the gateway to open it.
func (s *TransactionService) CreatePayout(ctx context.Context, in PayoutInput) (*CreateResult, error) {
	in.BeneficiaryName = strings.TrimSpace(in.BeneficiaryName)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.IFSCCode = strings.TrimSpace(in.IFSCCode)
	if err := validateInput(in, in.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	tx := &models.Transaction{
		ID:              s.ids.New(domain.KindPayout),
		Kind:            domain.KindPayout,
		Amount:          in.Amount,
		BeneficiaryName: in.BeneficiaryName,
		AccountNumber:   in.AccountNumber,
		IFSCCode:        in.IFSCCode,
		Status:          domain.StatusPending,
		GatewayName:     s.gatewayName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	req := gateway.Request{
		TransactionID:   tx.ID,
		Amount:          tx.Amount,
		BeneficiaryName: tx.BeneficiaryName,
		AccountNumber:   tx.AccountNumber,
		IFSCCode:        tx.IFSCCode,
	}
	return s.create(ctx, tx, req, s.gateway.CreatePayout)
}

// CreatePayin validates in, records a pending payin and asks the gateway for a payment intent.
func (s *TransactionService) CreatePayin(ctx context.Context, in PayinInput) (*CreateResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if err := validateInput(in, in.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	tx := &models.Transaction{
		ID:          s.ids.New(domain.KindPayin),
		Kind:        domain.KindPayin,
		Amount:      in.Amount,
		PayerName:   in.Name,
		PayerEmail:  in.Email,
		PayerMobile: in.Mobile,
		Status:      domain.StatusPending,
		GatewayName: s.gatewayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req := gateway.Request{
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		PayerName:     tx.PayerName,
		PayerEmail:    tx.PayerEmail,
		PayerMobile:   tx.PayerMobile,
	}
	return s.create(ctx, tx, req, s.gateway.CreatePayin)
}

func (s *TransactionService) create(ctx context.Context, tx *models.Transaction, req gateway.Request, call func(context.Context, gateway.Request) gateway.Result) (*CreateResult, error) {
	// Once the record exists the outcome must be written back even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("txn_id", tx.ID), zap.String("kind", string(tx.Kind)))

	if err := s.repo.Create(ctx, tx); err != nil {
		log.Error("persist pending transaction failed", zap.Error(err))
		return nil, &RepositoryError{Op: "create", Err: err}
	}
	observability.IncrementTransactionCreated(string(tx.Kind))
	s.publish(ctx, events.TransactionEvent{
		Type:          events.TypeTransactionCreated,
		TransactionID: tx.ID,
		Kind:          string(tx.Kind),
		Status:        string(tx.Status),
		OccurredAt:    tx.CreatedAt,
	})
	log.Info("transaction created", zap.String("amount", domain.FormatAmount(tx.Amount)))

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	res := call(callCtx, req)
	cancel()
	observability.ObserveGatewayCall(string(tx.Kind), gatewayOutcome(res), time.Since(start))

	if res.Acknowledged {
		return s.applyAcknowledgement(ctx, log, tx.ID, res)
	}
	return nil, s.applyRejection(ctx, log, tx.ID, res)
}

func (s *TransactionService) applyAcknowledgement(ctx context.Context, log *zap.Logger, id string, res gateway.Result) (*CreateResult, error) {
	var previous domain.Status
	updated, err := s.repo.Update(ctx, id, func(t *models.Transaction) error {
		previous = t.Status
		if t.ExternalID == "" && res.ExternalID != "" {
			t.ExternalID = res.ExternalID
		}
		if t.Status == domain.StatusPending {
			t.Status = domain.StatusProcessing
			t.GatewayResponse = res.Payload
		}
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		log.Error("record gateway acknowledgement failed", zap.String("gateway_order_id", res.ExternalID), zap.Error(err))
		return nil, &RepositoryError{Op: "update", Err: err}
	}
	if previous != domain.StatusPending {
		log.Warn("acknowledgement arrived after status moved on", zap.String("status", string(updated.Status)))
	}
	s.recordTransition(ctx, previous, updated)
	log.Info("gateway acknowledged transaction", zap.String("gateway_order_id", updated.ExternalID))

	return &CreateResult{
		TransactionID: updated.ID,
		Kind:          updated.Kind,
		Status:        updated.Status,
		ExternalID:    updated.ExternalID,
		GatewayData:   res.Payload,
	}, nil
}

func (s *TransactionService) applyRejection(ctx context.Context, log *zap.Logger, id string, res gateway.Result) error {
	var previous domain.Status
	updated, err := s.repo.Update(ctx, id, func(t *models.Transaction) error {
		previous = t.Status
		if canTransition(s.policy, t.Status, domain.StatusFailed) {
			t.Status = domain.StatusFailed
		}
		t.GatewayResponse = res.Raw()
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		log.Error("record gateway failure failed", zap.Error(err))
		return &RepositoryError{Op: "update", Err: err}
	}
	s.recordTransition(ctx, previous, updated)

	if res.Transport {
		log.Error("gateway call failed", zap.String("reason", res.Message))
		return &GatewayTransportError{TransactionID: id, Message: res.Message, Payload: res.Raw()}
	}
	log.Warn("gateway rejected transaction", zap.String("reason", res.Message))
	return &GatewayBusinessError{TransactionID: id, Message: res.Message, Payload: res.Raw()}
}

// ListTransactions returns matching records, newest first.
func (s *TransactionService) ListTransactions(ctx context.Context, filter ListFilter) ([]*models.Transaction, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, &RepositoryError{Op: "list", Err: err}
	}
	if filter.Kind == "" && filter.Status == "" {
		return all, nil
	}
	out := make([]*models.Transaction, 0, len(all))
	for _, t := range all {
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, &RepositoryError{Op: "get", Err: err}
	}
	return tx, nil
}

var errNoLongerPending = errors.New("transaction is no longer pending")

// FailStalePending marks records that never got past pending within olderThan
// as failed. This covers a crash between persisting and calling the gateway.
func (s *TransactionService) FailStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return 0, &RepositoryError{Op: "list", Err: err}
	}
	cutoff := s.now().Add(-olderThan)
	payload, _ := json.Marshal(map[string]string{"error": "gateway call did not complete"})

	failed := 0
	for _, candidate := range all {
		if candidate.Status != domain.StatusPending || !candidate.CreatedAt.Before(cutoff) {
			continue
		}
		updated, err := s.repo.Update(ctx, candidate.ID, func(t *models.Transaction) error {
			if t.Status != domain.StatusPending {
				return errNoLongerPending
			}
			t.Status = domain.StatusFailed
			t.GatewayResponse = payload
			t.UpdatedAt = s.now()
			return nil
		})
		if errors.Is(err, errNoLongerPending) {
			continue
		}
		if err != nil {
			return failed, &RepositoryError{Op: "update", Err: err}
		}
		failed++
		s.logger.Warn("stale pending transaction failed", zap.String("txn_id", updated.ID), zap.Time("created_at", updated.CreatedAt))
		s.recordTransition(ctx, domain.StatusPending, updated)
	}
	return failed, nil
}

func (s *TransactionService) recordTransition(ctx context.Context, previous domain.Status, tx *models.Transaction) {
	if previous == tx.Status {
		return
	}
	observability.IncrementTransition(string(previous), string(tx.Status))
	s.publish(ctx, statusChangedEvent(previous, tx))
}

func (s *TransactionService) publish(ctx context.Context, event events.TransactionEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish transaction event failed", zap.String("type", event.Type), zap.Error(err))
	}
}

func statusChangedEvent(previous domain.Status, tx *models.Transaction) events.TransactionEvent {
	return events.TransactionEvent{
		Type:           events.TypeTransactionStatusChanged,
		TransactionID:  tx.ID,
		Kind:           string(tx.Kind),
		Status:         string(tx.Status),
		PreviousStatus: string(previous),
		ExternalID:     tx.ExternalID,
		OccurredAt:     tx.UpdatedAt,
		Payload:        tx.GatewayResponse,
	}
}

func gatewayOutcome(res gateway.Result) string {
	switch {
	case res.Acknowledged:
		return "acknowledged"
	case res.Transport:
		return "transport_error"
	default:
		return "rejected"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateInput(in any, amount decimal.Decimal) error {
	var fields []FieldError
	if err := domain.RequirePositive(amount); err != nil {
		fields = append(fields, FieldError{Field: "amount", Rule: "positive"})
	} else if err := domain.RequireScale(amount); err != nil {
		fields = append(fields, FieldError{Field: "amount", Rule: "max_decimals"})
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Fields: append(fields, FieldError{Field: "body", Rule: err.Error()})}
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
