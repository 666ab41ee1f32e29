package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
)

type MongoGenerationRepo struct {
	col *mongo.Collection
}

// generationDoc is the stored shape. Content is kept as a raw document so
// nested sections decode back into plain maps and slices.
type generationDoc struct {
	ID            string             `bson:"id"`
	TargetID      string             `bson:"target_id"`
	Status        string             `bson:"status"`
	Content       bson.Raw           `bson:"content,omitempty"`
	StartedAt     *time.Time         `bson:"started_at,omitempty"`
	CompletedAt   *time.Time         `bson:"completed_at,omitempty"`
	Error         *string            `bson:"error,omitempty"`
	ExternalJobID *string            `bson:"external_job_id,omitempty"`
	Attempts      int                `bson:"attempts"`
	Model         string             `bson:"model,omitempty"`
	Usage         *entity.TokenUsage `bson:"usage,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func NewMongoGenerationRepo(db *mongo.Database) repository.GenerationRepository {
	col := db.Collection("generations")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "target_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{bson.E{Key: "status", Value: 1}}},
	})

	return &MongoGenerationRepo{
		col: col,
	}
}

func (r *MongoGenerationRepo) GetByTargetID(ctx context.Context, targetID string) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("mongo", "get")

	var doc generationDoc
	err := r.col.FindOne(ctx, bson.M{"target_id": targetID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_generation_repo", "get_error")
		return nil, fmt.Errorf("find generation for target %s: %w", targetID, err)
	}
	return fromDoc(&doc)
}

// Create upserts with $setOnInsert, so concurrent first calls converge on one record.
func (r *MongoGenerationRepo) Create(ctx context.Context, targetID string, placeholder entity.Content) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("mongo", "create")

	rec := entity.NewGenerationRecord(targetID)
	rec.Content = placeholder.Clone()
	doc, err := toDoc(rec)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$setOnInsert": bson.M{
		"id":         doc.ID,
		"status":     doc.Status,
		"content":    doc.Content,
		"attempts":   doc.Attempts,
		"created_at": doc.CreatedAt,
		"updated_at": doc.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored generationDoc
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"target_id": targetID}, update, opts).Decode(&stored); err != nil {
		metrics.IncError("mongo_generation_repo", "create_error")
		return nil, fmt.Errorf("create generation for target %s: %w", targetID, err)
	}
	if stored.ID == rec.ID {
		metrics.IncRecordsCreated()
	}
	return fromDoc(&stored)
}

func (r *MongoGenerationRepo) Save(ctx context.Context, record *entity.GenerationRecord) error {
	metrics.IncStoreOp("mongo", "save")

	doc, err := toDoc(record)
	if err != nil {
		return err
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"target_id": record.TargetID}, doc)
	if err != nil {
		metrics.IncError("mongo_generation_repo", "save_error")
		return fmt.Errorf("save generation for target %s: %w", record.TargetID, err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrRecordNotFound
	}
	return nil
}

func toDoc(r *entity.GenerationRecord) (*generationDoc, error) {
	doc := &generationDoc{
		ID:            r.ID,
		TargetID:      r.TargetID,
		Status:        string(r.Status),
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Error:         r.Error,
		ExternalJobID: r.ExternalJobID,
		Attempts:      r.Attempts,
		Model:         r.Model,
		Usage:         r.Usage,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Content != nil {
		raw, err := bson.Marshal(map[string]any(r.Content))
		if err != nil {
			return nil, fmt.Errorf("marshal content: %w", err)
		}
		doc.Content = raw
	}
	return doc, nil
}

func fromDoc(doc *generationDoc) (*entity.GenerationRecord, error) {
	rec := &entity.GenerationRecord{
		ID:            doc.ID,
		TargetID:      doc.TargetID,
		Status:        entity.GenerationStatus(doc.Status),
		StartedAt:     doc.StartedAt,
		CompletedAt:   doc.CompletedAt,
		Error:         doc.Error,
		ExternalJobID: doc.ExternalJobID,
		Attempts:      doc.Attempts,
		Model:         doc.Model,
		Usage:         doc.Usage,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if len(doc.Content) > 0 {
		content, err := decodeContent(doc.Content)
		if err != nil {
			return nil, err
		}
		rec.Content = content
	}
	return rec, nil
}

// decodeContent goes through relaxed extended JSON so the result only holds
// the JSON value types the validator and API expect.
func decodeContent(raw bson.Raw) (entity.Content, error) {
	js, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert content: %w", err)
	}
	var content map[string]any
	if err := json.Unmarshal(js, &content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return content, nil
}
