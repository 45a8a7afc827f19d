package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pharmacy-backend/models"
)

// ErrAlreadyVerified is returned when a verify call races with or follows
// a previous verification; the pending→approved/rejected transition fires
// at most once.
var ErrAlreadyVerified = errors.New("prescription already verified")

type PrescriptionRepository interface {
	Create(ctx context.Context, p *models.Prescription) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Prescription, error)
	FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]models.Prescription, int64, error)
	FindPending(ctx context.Context, page, limit int) ([]models.Prescription, int64, error)
	// Verify transitions validation.status from pending to the given
	// status as a single conditional update.
	Verify(ctx context.Context, id primitive.ObjectID, status models.PrescriptionStatus, verifiedBy primitive.ObjectID, remarks string) error
}

type MongoPrescriptionRepository struct {
	coll *mongo.Collection
}

func NewMongoPrescriptionRepository(db *mongo.Database) PrescriptionRepository {
	return &MongoPrescriptionRepository{coll: db.Collection("prescriptions")}
}

func (r *MongoPrescriptionRepository) Create(ctx context.Context, p *models.Prescription) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Validation.Status = models.PrescriptionStatusPending
	res, err := r.coll.InsertOne(ctx, p)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid
	}
	return nil
}

func (r *MongoPrescriptionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Prescription, error) {
	var p models.Prescription
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find prescription: %w", err)
	}
	return &p, nil
}

func (r *MongoPrescriptionRepository) FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]models.Prescription, int64, error) {
	return r.find(ctx, bson.M{"customer_id": customerID}, page, limit)
}

func (r *MongoPrescriptionRepository) FindPending(ctx context.Context, page, limit int) ([]models.Prescription, int64, error) {
	return r.find(ctx, bson.M{"validation.status": models.PrescriptionStatusPending}, page, limit)
}

func (r *MongoPrescriptionRepository) find(ctx context.Context, query bson.M, page, limit int) ([]models.Prescription, int64, error) {
	findOptions := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64((page - 1) * limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.coll.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("find prescriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var prescriptions []models.Prescription
	if err := cursor.All(ctx, &prescriptions); err != nil {
		return nil, 0, fmt.Errorf("decode prescriptions: %w", err)
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}
	return prescriptions, total, nil
}

func (r *MongoPrescriptionRepository) Verify(ctx context.Context, id primitive.ObjectID, status models.PrescriptionStatus, verifiedBy primitive.ObjectID, remarks string) error {
	now := time.Now().UTC()
	filter := bson.M{"_id": id, "validation.status": models.PrescriptionStatusPending}
	update := bson.M{"$set": bson.M{
		"validation.status":      status,
		"validation.verified_by": verifiedBy,
		"validation.verified_at": now,
		"validation.remarks":     remarks,
		"updated_at":             now,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("verify prescription: %w", err)
	}
	if res.MatchedCount == 0 {
		count, cerr := r.coll.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return fmt.Errorf("verify prescription lookup: %w", cerr)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyVerified
	}
	return nil
}
