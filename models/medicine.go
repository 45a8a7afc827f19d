package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MedicineCategory is a fixed therapeutic class.
type MedicineCategory string

const (
	CategoryAnalgesic     MedicineCategory = "analgesic"
	CategoryAntibiotic    MedicineCategory = "antibiotic"
	CategoryAntacid       MedicineCategory = "antacid"
	CategoryAntihistamine MedicineCategory = "antihistamine"
	CategoryAntiseptic    MedicineCategory = "antiseptic"
	CategoryCardiac       MedicineCategory = "cardiac"
	CategoryDermatology   MedicineCategory = "dermatology"
	CategoryDiabetes      MedicineCategory = "diabetes"
	CategoryRespiratory   MedicineCategory = "respiratory"
	CategorySupplement    MedicineCategory = "supplement"
	CategoryOther         MedicineCategory = "other"
)

// MedicineCategories lists every valid category, used by the custom
// binding validation registered in main.
var MedicineCategories = []MedicineCategory{
	CategoryAnalgesic, CategoryAntibiotic, CategoryAntacid,
	CategoryAntihistamine, CategoryAntiseptic, CategoryCardiac,
	CategoryDermatology, CategoryDiabetes, CategoryRespiratory,
	CategorySupplement, CategoryOther,
}

func (c MedicineCategory) Valid() bool {
	for _, v := range MedicineCategories {
		if c == v {
			return true
		}
	}
	return false
}

// DefaultNearExpiryDays is the near-expiry alert window when a medicine
// has no explicit threshold set.
const DefaultNearExpiryDays = 30

// MedicineAlerts holds per-medicine alerting thresholds.
type MedicineAlerts struct {
	LowStock       int `bson:"low_stock" json:"low_stock"`
	NearExpiryDays int `bson:"near_expiry_days" json:"near_expiry_days"`
}

type Medicine struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name"`
	Contents             []string           `bson:"contents" json:"contents"`
	Category             MedicineCategory   `bson:"category" json:"category"`
	Price                float64            `bson:"price" json:"price"`
	Stock                int                `bson:"stock" json:"stock"`
	PrescriptionRequired bool               `bson:"prescription_required" json:"prescription_required"`
	ExpiryDate           *time.Time         `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	Alerts               MedicineAlerts     `bson:"alerts" json:"alerts"`
	Image                string             `bson:"image,omitempty" json:"image,omitempty"`
	IsActive             bool               `bson:"is_active" json:"is_active"`
	CreatedAt            time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updated_at"`
}

// NearExpiryWindow returns the configured near-expiry threshold in days,
// falling back to the default window.
func (m *Medicine) NearExpiryWindow() int {
	if m.Alerts.NearExpiryDays > 0 {
		return m.Alerts.NearExpiryDays
	}
	return DefaultNearExpiryDays
}

// DaysUntilExpiry returns the whole days until the medicine expires and
// whether an expiry date is set at all.
func (m *Medicine) DaysUntilExpiry(now time.Time) (int, bool) {
	if m.ExpiryDate == nil {
		return 0, false
	}
	return int(m.ExpiryDate.Sub(now).Hours() / 24), true
}

type CreateMedicineRequest struct {
	Name                 string     `json:"name" binding:"required"`
	Contents             []string   `json:"contents"`
	Category             string     `json:"category" binding:"required,medicine_category"`
	Price                float64    `json:"price" binding:"min=0"`
	Stock                int        `json:"stock" binding:"min=0"`
	PrescriptionRequired bool       `json:"prescription_required"`
	ExpiryDate           *time.Time `json:"expiry_date"`
	LowStockThreshold    int        `json:"low_stock_threshold" binding:"min=0"`
	NearExpiryDays       int        `json:"near_expiry_days" binding:"min=0"`
	Image                string     `json:"image"`
}

// UpdateMedicineRequest uses pointers so that absent fields are left
// untouched.
type UpdateMedicineRequest struct {
	Name                 *string    `json:"name"`
	Contents             []string   `json:"contents"`
	Category             *string    `json:"category" binding:"omitempty,medicine_category"`
	Price                *float64   `json:"price" binding:"omitempty,min=0"`
	Stock                *int       `json:"stock" binding:"omitempty,min=0"`
	PrescriptionRequired *bool      `json:"prescription_required"`
	ExpiryDate           *time.Time `json:"expiry_date"`
	LowStockThreshold    *int       `json:"low_stock_threshold" binding:"omitempty,min=0"`
	NearExpiryDays       *int       `json:"near_expiry_days" binding:"omitempty,min=0"`
	Image                *string    `json:"image"`
	IsActive             *bool      `json:"is_active"`
}

type UpdateStockRequest struct {
	Stock int `json:"stock" binding:"min=0"`
}
