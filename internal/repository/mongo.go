package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	// TransactionCollectionName is the MongoDB collection holding transaction documents.
	TransactionCollectionName = "transactions"

	defaultMongoUpdateRetries = 5
)

// MongoRepository stores transactions as documents. Updates use optimistic
// concurrency on a version field and retry on conflict, so fn may run more than once.
type MongoRepository struct {
	coll       *mongo.Collection
	maxRetries int
	logger     *zap.Logger
}

type transactionDocument struct {
	ID                  string    `bson:"_id"`
	Kind                string    `bson:"kind"`
	Amount              string    `bson:"amount"`
	BeneficiaryName     string    `bson:"beneficiary_name,omitempty"`
	AccountNumber       string    `bson:"account_number,omitempty"`
	IFSCCode            string    `bson:"ifsc_code,omitempty"`
	PayerName           string    `bson:"payer_name,omitempty"`
	PayerEmail          string    `bson:"payer_email,omitempty"`
	PayerMobile         string    `bson:"payer_mobile,omitempty"`
	Status              string    `bson:"status"`
	ExternalID          string    `bson:"external_id,omitempty"`
	GatewayName         string    `bson:"gateway_name"`
	GatewayResponse     string    `bson:"gateway_response,omitempty"`
	SettlementReference string    `bson:"settlement_reference,omitempty"`
	CreatedAt           time.Time `bson:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"`
	Version             int64     `bson:"version"`
}

func NewMongoRepository(db *mongo.Database, logger *zap.Logger) *MongoRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoRepository{
		coll:       db.Collection(TransactionCollectionName),
		maxRetries: defaultMongoUpdateRetries,
		logger:     logger,
	}
}

// EnsureIndexes creates the unique external id index and the listing index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_external_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := validateNew(tx); err != nil {
		return err
	}
	doc := toDocument(tx)
	doc.Version = 1
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		r.logger.Error("failed to create transaction document", zap.String("txn_id", tx.ID), zap.Error(err))
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	doc, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

func (r *MongoRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	doc, err := r.findOne(ctx, bson.M{"external_id": externalID})
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

func (r *MongoRepository) Update(ctx context.Context, id string, fn MutateFunc) (*models.Transaction, error) {
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		doc, err := r.findOne(ctx, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		current, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		next, err := applyMutation(current, fn)
		if err != nil {
			return nil, err
		}

		replacement := toDocument(next)
		replacement.Version = doc.Version + 1
		res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id, "version": doc.Version}, replacement)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrExternalIDConflict
			}
			return nil, fmt.Errorf("failed to update transaction: %w", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
		r.logger.Debug("transaction version conflict, retrying", zap.String("txn_id", id), zap.Int("attempt", attempt))
	}
	return nil, ErrConcurrentUpdate
}

func (r *MongoRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	out := make([]*models.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*transactionDocument, error) {
	var doc transactionDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &doc, nil
}

func toDocument(tx *models.Transaction) transactionDocument {
	return transactionDocument{
		ID:                  tx.ID,
		Kind:                string(tx.Kind),
		Amount:              tx.Amount.String(),
		BeneficiaryName:     tx.BeneficiaryName,
		AccountNumber:       tx.AccountNumber,
		IFSCCode:            tx.IFSCCode,
		PayerName:           tx.PayerName,
		PayerEmail:          tx.PayerEmail,
		PayerMobile:         tx.PayerMobile,
		Status:              string(tx.Status),
		ExternalID:          tx.ExternalID,
		GatewayName:         tx.GatewayName,
		GatewayResponse:     string(tx.GatewayResponse),
		SettlementReference: tx.SettlementReference,
		CreatedAt:           tx.CreatedAt.UTC(),
		UpdatedAt:           tx.UpdatedAt.UTC(),
	}
}

func (d *transactionDocument) toModel() (*models.Transaction, error) {
	amount, err := domain.ParseAmount(d.Amount)
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{
		ID:                  d.ID,
		Kind:                domain.Kind(d.Kind),
		Amount:              amount,
		BeneficiaryName:     d.BeneficiaryName,
		AccountNumber:       d.AccountNumber,
		IFSCCode:            d.IFSCCode,
		PayerName:           d.PayerName,
		PayerEmail:          d.PayerEmail,
		PayerMobile:         d.PayerMobile,
		Status:              domain.Status(d.Status),
		ExternalID:          d.ExternalID,
		GatewayName:         d.GatewayName,
		SettlementReference: d.SettlementReference,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.GatewayResponse != "" {
		tx.GatewayResponse = json.RawMessage(d.GatewayResponse)
	}
	return tx, nil
}
