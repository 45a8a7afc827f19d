package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryBoy is owned by exactly one pharmacist; the owning reference is
// validated at write time.
type DeliveryBoy struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name              string             `bson:"name" json:"name"`
	Email             string             `bson:"email" json:"email"`
	Password          string             `bson:"password" json:"-"`
	Mobile            string             `bson:"mobile,omitempty" json:"mobile,omitempty"`
	PharmacistID      primitive.ObjectID `bson:"pharmacist_id" json:"pharmacist_id"`
	IsActive          bool               `bson:"is_active" json:"is_active"`
	IsPasswordChanged bool               `bson:"is_password_changed" json:"is_password_changed"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

type CreateDeliveryBoyRequest struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Mobile string `json:"mobile"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// DeliveryStats backs the delivery-boy dashboard. There is no tracking
// data source yet, so the handler serves zeroed counters.
type DeliveryStats struct {
	AssignedOrders  int64 `json:"assigned_orders"`
	DeliveredOrders int64 `json:"delivered_orders"`
	PendingOrders   int64 `json:"pending_orders"`
}
