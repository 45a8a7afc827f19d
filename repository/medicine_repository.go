package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pharmacy-backend/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate record")
)

// MedicineListFilter narrows List queries; zero values mean "no filter".
type MedicineListFilter struct {
	Search     string
	Category   models.MedicineCategory
	ActiveOnly bool
}

// MedicineRepository defines the interface for catalog data access.
type MedicineRepository interface {
	Create(ctx context.Context, m *models.Medicine) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Medicine, error)
	List(ctx context.Context, filter MedicineListFilter, page, limit int) ([]models.Medicine, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Medicine, error)
	// DecrementStock subtracts quantity from stock only if the current
	// stock covers it, as a single conditional update. Returns
	// ErrInsufficientStock when the condition fails against an existing
	// active medicine and ErrNotFound when no such medicine exists.
	DecrementStock(ctx context.Context, id primitive.ObjectID, quantity int) (*models.Medicine, error)
	// IncrementStock adds quantity back to stock (cancellation restock,
	// rollback of a partially reserved order).
	IncrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error
	LowStock(ctx context.Context) ([]models.Medicine, error)
	WithExpiry(ctx context.Context, activeOnly bool) ([]models.Medicine, error)
	Expired(ctx context.Context, now time.Time) ([]models.Medicine, error)
	MatchActiveByName(ctx context.Context, name string) ([]models.Medicine, error)
}

// MongoMedicineRepository implements MedicineRepository on a MongoDB
// collection.
type MongoMedicineRepository struct {
	coll *mongo.Collection
}

func NewMongoMedicineRepository(db *mongo.Database) MedicineRepository {
	return &MongoMedicineRepository{coll: db.Collection("medicines")}
}

func (r *MongoMedicineRepository) Create(ctx context.Context, m *models.Medicine) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	res, err := r.coll.InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	return nil
}

func (r *MongoMedicineRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Medicine, error) {
	var m models.Medicine
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find medicine: %w", err)
	}
	return &m, nil
}

func (r *MongoMedicineRepository) List(ctx context.Context, filter MedicineListFilter, page, limit int) ([]models.Medicine, int64, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Search != "" {
		query["name"] = bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}}
	}

	findOptions := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64((page - 1) * limit)).
		SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.coll.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("find medicines: %w", err)
	}
	defer cursor.Close(ctx)

	var medicines []models.Medicine
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, 0, fmt.Errorf("decode medicines: %w", err)
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}
	return medicines, total, nil
}

func (r *MongoMedicineRepository) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	updates["updated_at"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes the document and returns it so the caller can
// release the associated image asset.
func (r *MongoMedicineRepository) Delete(ctx context.Context, id primitive.ObjectID) (*models.Medicine, error) {
	var m models.Medicine
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete medicine: %w", err)
	}
	return &m, nil
}

func (r *MongoMedicineRepository) DecrementStock(ctx context.Context, id primitive.ObjectID, quantity int) (*models.Medicine, error) {
	filter := bson.M{
		"_id":       id,
		"is_active": true,
		"stock":     bson.M{"$gte": quantity},
	}
	update := bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var m models.Medicine
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	// Condition failed: distinguish a missing/inactive medicine from one
	// that simply lacks stock.
	count, cerr := r.coll.CountDocuments(ctx, bson.M{"_id": id, "is_active": true})
	if cerr != nil {
		return nil, fmt.Errorf("decrement stock lookup: %w", cerr)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrInsufficientStock
}

func (r *MongoMedicineRepository) IncrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error {
	update := bson.M{
		"$inc": bson.M{"stock": quantity},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// LowStock returns active medicines whose stock is at or below their own
// low-stock threshold.
func (r *MongoMedicineRepository) LowStock(ctx context.Context) ([]models.Medicine, error) {
	filter := bson.M{
		"is_active": true,
		"$expr":     bson.M{"$lte": bson.A{"$stock", "$alerts.low_stock"}},
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find low stock: %w", err)
	}
	defer cursor.Close(ctx)

	var medicines []models.Medicine
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, fmt.Errorf("decode low stock: %w", err)
	}
	return medicines, nil
}

// WithExpiry returns medicines that carry an expiry date at all; the
// per-medicine near-expiry window is applied by the caller.
func (r *MongoMedicineRepository) WithExpiry(ctx context.Context, activeOnly bool) ([]models.Medicine, error) {
	filter := bson.M{"expiry_date": bson.M{"$exists": true, "$ne": nil}}
	if activeOnly {
		filter["is_active"] = true
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find medicines with expiry: %w", err)
	}
	defer cursor.Close(ctx)

	var medicines []models.Medicine
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, fmt.Errorf("decode medicines with expiry: %w", err)
	}
	return medicines, nil
}

// Expired returns medicines past their expiry date regardless of
// is_active.
func (r *MongoMedicineRepository) Expired(ctx context.Context, now time.Time) ([]models.Medicine, error) {
	filter := bson.M{"expiry_date": bson.M{"$lt": now}}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find expired: %w", err)
	}
	defer cursor.Close(ctx)

	var medicines []models.Medicine
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, fmt.Errorf("decode expired: %w", err)
	}
	return medicines, nil
}

// MatchActiveByName returns active, in-stock medicines whose name equals
// the given name, compared case-insensitively via an anchored regex.
func (r *MongoMedicineRepository) MatchActiveByName(ctx context.Context, name string) ([]models.Medicine, error) {
	filter := bson.M{
		"name":      primitive.Regex{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"},
		"is_active": true,
		"stock":     bson.M{"$gt": 0},
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("match medicines by name: %w", err)
	}
	defer cursor.Close(ctx)

	var medicines []models.Medicine
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, fmt.Errorf("decode matched medicines: %w", err)
	}
	return medicines, nil
}
