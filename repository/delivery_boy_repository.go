package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"pharmacy-backend/models"
)

type DeliveryBoyRepository interface {
	Create(ctx context.Context, d *models.DeliveryBoy) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.DeliveryBoy, error)
	FindByEmail(ctx context.Context, email string) (*models.DeliveryBoy, error)
	FindByPharmacist(ctx context.Context, pharmacistID primitive.ObjectID) ([]models.DeliveryBoy, error)
	Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	// Delete hard-deletes the account; used to roll back a creation whose
	// credential email could not be sent.
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type MongoDeliveryBoyRepository struct {
	coll *mongo.Collection
}

func NewMongoDeliveryBoyRepository(db *mongo.Database) DeliveryBoyRepository {
	return &MongoDeliveryBoyRepository{coll: db.Collection("delivery_boys")}
}

func (r *MongoDeliveryBoyRepository) Create(ctx context.Context, d *models.DeliveryBoy) error {
	now := time.Now().UTC()
	d.Email = strings.ToLower(d.Email)
	d.CreatedAt = now
	d.UpdatedAt = now
	res, err := r.coll.InsertOne(ctx, d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert delivery boy: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		d.ID = oid
	}
	return nil
}

func (r *MongoDeliveryBoyRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.DeliveryBoy, error) {
	var d models.DeliveryBoy
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find delivery boy: %w", err)
	}
	return &d, nil
}

func (r *MongoDeliveryBoyRepository) FindByEmail(ctx context.Context, email string) (*models.DeliveryBoy, error) {
	var d models.DeliveryBoy
	err := r.coll.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find delivery boy by email: %w", err)
	}
	return &d, nil
}

func (r *MongoDeliveryBoyRepository) FindByPharmacist(ctx context.Context, pharmacistID primitive.ObjectID) ([]models.DeliveryBoy, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"pharmacist_id": pharmacistID})
	if err != nil {
		return nil, fmt.Errorf("find delivery boys: %w", err)
	}
	defer cursor.Close(ctx)

	var boys []models.DeliveryBoy
	if err := cursor.All(ctx, &boys); err != nil {
		return nil, fmt.Errorf("decode delivery boys: %w", err)
	}
	return boys, nil
}

func (r *MongoDeliveryBoyRepository) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	updates["updated_at"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("update delivery boy: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoDeliveryBoyRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete delivery boy: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
