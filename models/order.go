package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// orderTransitions maps each target status to its allowed predecessor
// states. Cancellation is reachable from any non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusConfirmed: {OrderStatusPending},
	OrderStatusPreparing: {OrderStatusConfirmed},
	OrderStatusReady:     {OrderStatusPreparing},
	OrderStatusDelivered: {OrderStatusReady},
	OrderStatusCancelled: {OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady},
}

// CanTransition reports whether an order may move from one status to
// another under the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[to] {
		if from == allowed {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD       PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline    PaymentMethod = "online"
	PaymentMethodInsurance PaymentMethod = "insurance"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// OrderItem is a point-in-time snapshot of a catalog medicine; name and
// price are captured at order time so later catalog edits do not alter
// historical orders.
type OrderItem struct {
	MedicineID primitive.ObjectID `bson:"medicine_id" json:"medicine_id"`
	Name       string             `bson:"name" json:"name"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	Price      float64            `bson:"price" json:"price"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"`
}

// CustomerDetails is denormalized into the order at creation time.
type CustomerDetails struct {
	Name    string `bson:"name" json:"name"`
	Email   string `bson:"email" json:"email"`
	Mobile  string `bson:"mobile" json:"mobile"`
	Address string `bson:"address" json:"address"`
}

type Order struct {
	ID                  primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OrderNumber         string              `bson:"order_number" json:"order_number"`
	CustomerID          primitive.ObjectID  `bson:"customer_id" json:"customer_id"`
	CustomerDetails     CustomerDetails     `bson:"customer_details" json:"customer_details"`
	Items               []OrderItem         `bson:"items" json:"items"`
	TotalAmount         float64             `bson:"total_amount" json:"total_amount"`
	PaymentMethod       PaymentMethod       `bson:"payment_method" json:"payment_method"`
	Status              OrderStatus         `bson:"status" json:"status"`
	PaymentStatus       PaymentStatus       `bson:"payment_status" json:"payment_status"`
	PrescriptionID      *primitive.ObjectID `bson:"prescription_id,omitempty" json:"prescription_id,omitempty"`
	PrescriptionImage   string              `bson:"prescription_image,omitempty" json:"prescription_image,omitempty"`
	AssignedDeliveryBoy *primitive.ObjectID `bson:"assigned_delivery_boy,omitempty" json:"assigned_delivery_boy,omitempty"`
	Notes               string              `bson:"notes,omitempty" json:"notes,omitempty"`
	PharmacistNotes     string              `bson:"pharmacist_notes,omitempty" json:"pharmacist_notes,omitempty"`
	DeliveryDate        *time.Time          `bson:"delivery_date,omitempty" json:"delivery_date,omitempty"`
	CreatedAt           time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `bson:"updated_at" json:"updated_at"`
}

type OrderItemRequest struct {
	MedicineID string `json:"medicine_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod  PaymentMethod      `json:"payment_method" binding:"required,oneof=cash_on_delivery online insurance"`
	// Address falls back to the customer's profile address when empty.
	Address        string             `json:"address"`
	PrescriptionID string             `json:"prescription_id"`
	Notes          string             `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status          OrderStatus `json:"status" binding:"omitempty,oneof=pending confirmed preparing ready delivered cancelled"`
	PharmacistNotes *string     `json:"pharmacist_notes"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status" binding:"required,oneof=pending paid failed"`
}

type AssignDeliveryBoyRequest struct {
	DeliveryBoyID string `json:"delivery_boy_id" binding:"required"`
}

// OrderStats is the aggregate view served to pharmacists.
type OrderStats struct {
	TotalOrders   int64                 `json:"total_orders"`
	TodayOrders   int64                 `json:"today_orders"`
	StatusCounts  map[OrderStatus]int64 `json:"status_counts"`
	TotalRevenue  float64               `json:"total_revenue"`
	PendingAmount float64               `json:"pending_amount"`
}
