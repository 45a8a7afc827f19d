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

// ErrOrderTerminal is returned when a conditional mutation finds the order
// already delivered or cancelled.
var ErrOrderTerminal = errors.New("order already in a terminal state")

// OrderListFilter narrows pharmacist order listings.
type OrderListFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	OrderNumber   string
}

type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]models.Order, int64, error)
	List(ctx context.Context, filter OrderListFilter, page, limit int) ([]models.Order, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	// MarkCancelled flips status to cancelled only while the order is not
	// already delivered or cancelled, as a single conditional update, and
	// returns the order as it was before the flip so the caller can
	// restock its items.
	MarkCancelled(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Stats(ctx context.Context, now time.Time) (*models.OrderStats, error)
}

type MongoOrderRepository struct {
	coll *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &MongoOrderRepository{coll: db.Collection("orders")}
}

func (r *MongoOrderRepository) Create(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	res, err := r.coll.InsertOne(ctx, o)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		o.ID = oid
	}
	return nil
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var o models.Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

func (r *MongoOrderRepository) FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]models.Order, int64, error) {
	return r.find(ctx, bson.M{"customer_id": customerID}, page, limit)
}

func (r *MongoOrderRepository) List(ctx context.Context, filter OrderListFilter, page, limit int) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.PaymentStatus != "" {
		query["payment_status"] = filter.PaymentStatus
	}
	if filter.OrderNumber != "" {
		query["order_number"] = filter.OrderNumber
	}
	return r.find(ctx, query, page, limit)
}

func (r *MongoOrderRepository) find(ctx context.Context, query bson.M, page, limit int) ([]models.Order, int64, error) {
	findOptions := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64((page - 1) * limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.coll.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

func (r *MongoOrderRepository) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	updates["updated_at"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoOrderRepository) MarkCancelled(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$nin": bson.A{models.OrderStatusDelivered, models.OrderStatusCancelled}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.OrderStatusCancelled,
		"updated_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var o models.Order
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&o)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	count, cerr := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if cerr != nil {
		return nil, fmt.Errorf("cancel order lookup: %w", cerr)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrOrderTerminal
}

// Stats aggregates order counts per status, today's order count, revenue
// over delivered+paid orders and the outstanding amount on unpaid
// non-cancelled orders.
func (r *MongoOrderRepository) Stats(ctx context.Context, now time.Time) (*models.OrderStats, error) {
	stats := &models.OrderStats{StatusCounts: make(map[models.OrderStatus]int64)}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate status counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.OrderStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode status counts: %w", err)
	}
	for _, row := range rows {
		stats.StatusCounts[row.Status] = row.Count
		stats.TotalOrders += row.Count
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayCount, err := r.coll.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": startOfDay}})
	if err != nil {
		return nil, fmt.Errorf("count today orders: %w", err)
	}
	stats.TodayOrders = todayCount

	revenuePipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":         models.OrderStatusDelivered,
			"payment_status": models.PaymentStatusPaid,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$total_amount"},
		}}},
	}
	revCursor, err := r.coll.Aggregate(ctx, revenuePipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer revCursor.Close(ctx)

	var revRows []struct {
		Total float64 `bson:"total"`
	}
	if err := revCursor.All(ctx, &revRows); err != nil {
		return nil, fmt.Errorf("decode revenue: %w", err)
	}
	if len(revRows) > 0 {
		stats.TotalRevenue = revRows[0].Total
	}

	pendingPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"payment_status": models.PaymentStatusPending,
			"status":         bson.M{"$ne": models.OrderStatusCancelled},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$total_amount"},
		}}},
	}
	pendCursor, err := r.coll.Aggregate(ctx, pendingPipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate pending amount: %w", err)
	}
	defer pendCursor.Close(ctx)

	var pendRows []struct {
		Total float64 `bson:"total"`
	}
	if err := pendCursor.All(ctx, &pendRows); err != nil {
		return nil, fmt.Errorf("decode pending amount: %w", err)
	}
	if len(pendRows) > 0 {
		stats.PendingAmount = pendRows[0].Total
	}

	return stats, nil
}
