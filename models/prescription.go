package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PrescriptionStatus string

const (
	PrescriptionStatusPending  PrescriptionStatus = "pending"
	PrescriptionStatusApproved PrescriptionStatus = "approved"
	PrescriptionStatusRejected PrescriptionStatus = "rejected"
	PrescriptionStatusExpired  PrescriptionStatus = "expired"
)

type PrescriptionFile struct {
	URL        string    `bson:"url" json:"url"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

type DoctorInfo struct {
	Name         string `bson:"name" json:"name"`
	Registration string `bson:"registration,omitempty" json:"registration,omitempty"`
	Hospital     string `bson:"hospital,omitempty" json:"hospital,omitempty"`
}

// MentionedMedicine is free text extracted from the prescription, not a
// catalog reference.
type MentionedMedicine struct {
	Name     string `bson:"name" json:"name"`
	Dosage   string `bson:"dosage,omitempty" json:"dosage,omitempty"`
	Duration string `bson:"duration,omitempty" json:"duration,omitempty"`
}

type PrescriptionValidation struct {
	Status     PrescriptionStatus  `bson:"status" json:"status"`
	VerifiedBy *primitive.ObjectID `bson:"verified_by,omitempty" json:"verified_by,omitempty"`
	VerifiedAt *time.Time          `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	Remarks    string              `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

type Prescription struct {
	ID                 primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	CustomerID         primitive.ObjectID     `bson:"customer_id" json:"customer_id"`
	Files              []PrescriptionFile     `bson:"files" json:"files"`
	Doctor             DoctorInfo             `bson:"doctor" json:"doctor"`
	MedicinesMentioned []MentionedMedicine    `bson:"medicines_mentioned" json:"medicines_mentioned"`
	Validation         PrescriptionValidation `bson:"validation" json:"validation"`
	ExpiryDate         *time.Time             `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	AIValidated        bool                   `bson:"ai_validated" json:"ai_validated"` // reserved, never set
	CreatedAt          time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time              `bson:"updated_at" json:"updated_at"`
}

// Expired reports whether the prescription is past its expiry date. There
// is no background job flipping the stored status; this is checked at gate
// and query time.
func (p *Prescription) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(now)
}

// EffectiveStatus folds expiry into the stored validation status.
func (p *Prescription) EffectiveStatus(now time.Time) PrescriptionStatus {
	if p.Validation.Status == PrescriptionStatusApproved && p.Expired(now) {
		return PrescriptionStatusExpired
	}
	return p.Validation.Status
}

type CreatePrescriptionRequest struct {
	Files              []PrescriptionFile  `json:"files" binding:"required,min=1,dive"`
	Doctor             DoctorInfo          `json:"doctor"`
	MedicinesMentioned []MentionedMedicine `json:"medicines_mentioned"`
	ExpiryDate         *time.Time          `json:"expiry_date"`
}

type VerifyPrescriptionRequest struct {
	Status  PrescriptionStatus `json:"status" binding:"required,oneof=approved rejected"`
	Remarks string             `json:"remarks"`
}
