package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
)

// EventPublisher emits order lifecycle events; publishing is best-effort
// and never fails the request.
type EventPublisher interface {
	Publish(topic string, message []byte) error
}

type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	CustomerID  string             `json:"customer_id"`
	Status      models.OrderStatus `json:"status,omitempty"`
	Total       float64            `json:"total,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

type OrderListResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   Meta           `json:"meta"`
}

// OrderService defines the order workflow: creation with stock
// reservation, prescription gating, status transitions, cancellation with
// restock, and aggregate stats.
type OrderService interface {
	Create(ctx context.Context, customerID string, req *models.CreateOrderRequest) (*models.Order, *ServiceError)
	GetByID(ctx context.Context, requesterID string, role models.Role, orderID string) (*models.Order, *ServiceError)
	ListCustomerOrders(ctx context.Context, customerID string, page, limit int) (*OrderListResponse, *ServiceError)
	List(ctx context.Context, filter repository.OrderListFilter, page, limit int) (*OrderListResponse, *ServiceError)
	UpdateStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, *ServiceError)
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) (*models.Order, *ServiceError)
	AssignDeliveryBoy(ctx context.Context, orderID, deliveryBoyID string) *ServiceError
	Cancel(ctx context.Context, customerID, orderID string) (*models.Order, *ServiceError)
	Stats(ctx context.Context) (*models.OrderStats, *ServiceError)
}

type orderServiceImpl struct {
	orders        repository.OrderRepository
	medicines     repository.MedicineRepository
	prescriptions repository.PrescriptionRepository
	users         repository.UserRepository
	deliveryBoys  repository.DeliveryBoyRepository
	producer      EventPublisher
	eventTopic    string
	logger        *zap.Logger
}

func NewOrderService(
	orders repository.OrderRepository,
	medicines repository.MedicineRepository,
	prescriptions repository.PrescriptionRepository,
	users repository.UserRepository,
	deliveryBoys repository.DeliveryBoyRepository,
	producer EventPublisher,
	eventTopic string,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		orders:        orders,
		medicines:     medicines,
		prescriptions: prescriptions,
		users:         users,
		deliveryBoys:  deliveryBoys,
		producer:      producer,
		eventTopic:    eventTopic,
		logger:        logger,
	}
}

// Create builds an order from the requested items. The prescription gate
// runs before any stock mutation. Each line item is reserved with a
// conditional decrement; if any item cannot be covered, every prior
// decrement is rolled back and the whole order is rejected.
func (s *orderServiceImpl) Create(ctx context.Context, customerID string, req *models.CreateOrderRequest) (*models.Order, *ServiceError) {
	customerOID, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid customer ID"}
	}

	customer, err := s.users.FindByID(ctx, customerOID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Customer not found"}
		}
		s.logger.Error("Failed to load customer", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create order"}
	}

	// Resolve the delivery address before any stock is touched.
	address := req.Address
	if address == "" {
		address = customer.Address
	}
	if address == "" {
		return nil, &ServiceError{StatusCode: 400, Message: "Delivery address is required"}
	}

	itemOIDs := make([]primitive.ObjectID, len(req.Items))
	for i, item := range req.Items {
		oid, err := primitive.ObjectIDFromHex(item.MedicineID)
		if err != nil {
			return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine ID"}
		}
		itemOIDs[i] = oid
	}

	// Prescription gate: if any requested medicine is restricted, an
	// approved, unexpired prescription owned by this customer must be
	// supplied before any stock is touched.
	requiresPrescription := false
	for _, oid := range itemOIDs {
		m, err := s.medicines.FindByID(ctx, oid)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &ServiceError{StatusCode: 404, Message: "Medicine not found"}
			}
			s.logger.Error("Failed to load medicine", zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Message: "Failed to create order"}
		}
		if !m.IsActive {
			return nil, &ServiceError{StatusCode: 404, Message: "Medicine not found"}
		}
		if m.PrescriptionRequired {
			requiresPrescription = true
		}
	}

	var prescriptionOID *primitive.ObjectID
	if requiresPrescription {
		if req.PrescriptionID == "" {
			return nil, &ServiceError{StatusCode: 400, Message: "Prescription required for one or more medicines"}
		}
		oid, err := primitive.ObjectIDFromHex(req.PrescriptionID)
		if err != nil {
			return nil, &ServiceError{StatusCode: 400, Message: "Invalid prescription ID"}
		}
		prescription, err := s.prescriptions.FindByID(ctx, oid)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &ServiceError{StatusCode: 404, Message: "Prescription not found"}
			}
			s.logger.Error("Failed to load prescription", zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Message: "Failed to create order"}
		}
		if prescription.CustomerID != customerOID {
			return nil, &ServiceError{StatusCode: 403, Message: "Prescription does not belong to this customer"}
		}
		if prescription.Validation.Status != models.PrescriptionStatusApproved {
			return nil, &ServiceError{StatusCode: 400, Message: "Prescription is not approved"}
		}
		if prescription.Expired(time.Now().UTC()) {
			return nil, &ServiceError{StatusCode: 400, Message: "Prescription has expired"}
		}
		prescriptionOID = &oid
	}

	// Reserve stock item by item. DecrementStock only succeeds when the
	// current stock covers the quantity, so two racing orders can never
	// both take the last units.
	items := make([]models.OrderItem, 0, len(req.Items))
	var total float64
	for i, reqItem := range req.Items {
		m, err := s.medicines.DecrementStock(ctx, itemOIDs[i], reqItem.Quantity)
		if err != nil {
			s.rollbackReservations(ctx, items)
			switch {
			case errors.Is(err, repository.ErrInsufficientStock):
				return nil, &ServiceError{StatusCode: 400, Message: "Insufficient stock"}
			case errors.Is(err, repository.ErrNotFound):
				return nil, &ServiceError{StatusCode: 404, Message: "Medicine not found"}
			default:
				s.logger.Error("Failed to reserve stock", zap.String("medicine_id", itemOIDs[i].Hex()), zap.Error(err))
				return nil, &ServiceError{StatusCode: 500, Message: "Failed to create order"}
			}
		}
		items = append(items, models.OrderItem{
			MedicineID: m.ID,
			Name:       m.Name,
			Quantity:   reqItem.Quantity,
			Price:      m.Price,
			Image:      m.Image,
		})
		total += m.Price * float64(reqItem.Quantity)
	}

	order := &models.Order{
		OrderNumber: generateOrderNumber(),
		CustomerID:  customerOID,
		CustomerDetails: models.CustomerDetails{
			Name:    customer.Name,
			Email:   customer.Email,
			Mobile:  customer.Mobile,
			Address: address,
		},
		Items:          items,
		TotalAmount:    total,
		PaymentMethod:  req.PaymentMethod,
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		PrescriptionID: prescriptionOID,
		Notes:          req.Notes,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.rollbackReservations(ctx, items)
		s.logger.Error("Failed to insert order", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create order"}
	}

	s.publishEvent("order.created", order)
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("customer_id", customerID),
		zap.Float64("total", order.TotalAmount),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

// rollbackReservations returns previously decremented quantities. Failures
// here are logged but not surfaced; the request is already failing.
func (s *orderServiceImpl) rollbackReservations(ctx context.Context, items []models.OrderItem) {
	for _, item := range items {
		if err := s.medicines.IncrementStock(ctx, item.MedicineID, item.Quantity); err != nil {
			s.logger.Error("Failed to roll back stock reservation",
				zap.String("medicine_id", item.MedicineID.Hex()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *orderServiceImpl) GetByID(ctx context.Context, requesterID string, role models.Role, orderID string) (*models.Order, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("Failed to fetch order", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch order"}
	}

	if role == models.RoleCustomer && order.CustomerID.Hex() != requesterID {
		return nil, &ServiceError{StatusCode: 403, Message: "Access denied"}
	}
	return order, nil
}

func (s *orderServiceImpl) ListCustomerOrders(ctx context.Context, customerID string, page, limit int) (*OrderListResponse, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid customer ID"}
	}

	orders, total, err := s.orders.FindByCustomer(ctx, oid, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch customer orders", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch orders"}
	}
	return &OrderListResponse{Orders: orders, Meta: buildMeta(page, limit, total)}, nil
}

func (s *orderServiceImpl) List(ctx context.Context, filter repository.OrderListFilter, page, limit int) (*OrderListResponse, *ServiceError) {
	orders, total, err := s.orders.List(ctx, filter, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch orders"}
	}
	return &OrderListResponse{Orders: orders, Meta: buildMeta(page, limit, total)}, nil
}

// UpdateStatus applies a pharmacist status change under the transition
// table. Setting pharmacist notes without a status change is allowed.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}
	if req.Status == "" && req.PharmacistNotes == nil {
		return nil, &ServiceError{StatusCode: 400, Message: "No update fields provided"}
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("Failed to fetch order", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update order"}
	}

	updates := bson.M{}
	if req.PharmacistNotes != nil {
		updates["pharmacist_notes"] = *req.PharmacistNotes
		order.PharmacistNotes = *req.PharmacistNotes
	}

	if req.Status != "" && req.Status != order.Status {
		if !models.CanTransition(order.Status, req.Status) {
			return nil, &ServiceError{
				StatusCode: 400,
				Message:    fmt.Sprintf("Illegal status transition from %s to %s", order.Status, req.Status),
			}
		}
		updates["status"] = req.Status
		order.Status = req.Status
		if req.Status == models.OrderStatusDelivered {
			now := time.Now().UTC()
			updates["delivery_date"] = now
			order.DeliveryDate = &now
		}
	}

	if len(updates) == 0 {
		return order, nil
	}

	if err := s.orders.Update(ctx, oid, updates); err != nil {
		s.logger.Error("Failed to update order status", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update order"}
	}

	if _, changed := updates["status"]; changed {
		s.publishEvent("order.status_changed", order)
	}
	s.logger.Info("Order updated",
		zap.String("order_id", orderID),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

// UpdatePaymentStatus sets the payment axis independently of order status;
// a delivered cash-on-delivery order may legitimately stay pending.
func (s *orderServiceImpl) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) (*models.Order, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}

	if err := s.orders.Update(ctx, oid, bson.M{"payment_status": status}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("Failed to update payment status", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update payment status"}
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		s.logger.Error("Failed to reload order", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update payment status"}
	}
	s.logger.Info("Payment status updated", zap.String("order_id", orderID), zap.String("payment_status", string(status)))
	return order, nil
}

func (s *orderServiceImpl) AssignDeliveryBoy(ctx context.Context, orderID, deliveryBoyID string) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}
	boyOID, err := primitive.ObjectIDFromHex(deliveryBoyID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid delivery boy ID"}
	}

	boy, err := s.deliveryBoys.FindByID(ctx, boyOID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Delivery boy not found"}
		}
		s.logger.Error("Failed to load delivery boy", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to assign delivery boy"}
	}
	if !boy.IsActive {
		return &ServiceError{StatusCode: 400, Message: "Delivery boy is not active"}
	}

	if err := s.orders.Update(ctx, oid, bson.M{"assigned_delivery_boy": boyOID}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("Failed to assign delivery boy", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to assign delivery boy"}
	}
	return nil
}

// Cancel lets the owning customer cancel a non-terminal order. The status
// flip is a conditional update, so a concurrent delivery or second cancel
// cannot double-restock; restocking then restores every item in full.
func (s *orderServiceImpl) Cancel(ctx context.Context, customerID, orderID string) (*models.Order, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid order ID"}
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		}
		s.logger.Error("Failed to fetch order", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to cancel order"}
	}
	if order.CustomerID.Hex() != customerID {
		return nil, &ServiceError{StatusCode: 403, Message: "Only the owning customer may cancel this order"}
	}

	prev, err := s.orders.MarkCancelled(ctx, oid)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderTerminal):
			return nil, &ServiceError{StatusCode: 400, Message: "Order cannot be cancelled in its current status"}
		case errors.Is(err, repository.ErrNotFound):
			return nil, &ServiceError{StatusCode: 404, Message: "Order not found"}
		default:
			s.logger.Error("Failed to cancel order", zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Message: "Failed to cancel order"}
		}
	}

	for _, item := range prev.Items {
		if err := s.medicines.IncrementStock(ctx, item.MedicineID, item.Quantity); err != nil {
			s.logger.Error("Failed to restock cancelled item",
				zap.String("order_id", orderID),
				zap.String("medicine_id", item.MedicineID.Hex()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}

	prev.Status = models.OrderStatusCancelled
	s.publishEvent("order.cancelled", prev)
	s.logger.Info("Order cancelled", zap.String("order_id", orderID), zap.String("customer_id", customerID))
	return prev, nil
}

func (s *orderServiceImpl) Stats(ctx context.Context) (*models.OrderStats, *ServiceError) {
	stats, err := s.orders.Stats(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Failed to aggregate order stats", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch order stats"}
	}
	return stats, nil
}

func (s *orderServiceImpl) publishEvent(eventType string, order *models.Order) {
	if s.producer == nil {
		return
	}
	evt := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.Hex(),
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID.Hex(),
		Status:      order.Status,
		Total:       order.TotalAmount,
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("Failed to marshal order event", zap.Error(err))
		return
	}
	if err := s.producer.Publish(s.eventTopic, data); err != nil {
		s.logger.Warn("Failed to publish order event", zap.String("type", eventType), zap.Error(err))
	}
}

// generateOrderNumber builds a time-based order number with a random
// numeric suffix.
func generateOrderNumber() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		suffix = big.NewInt(time.Now().UnixNano() % 10000)
	}
	return fmt.Sprintf("ORD-%d-%04d", time.Now().UTC().UnixMilli(), suffix.Int64())
}
