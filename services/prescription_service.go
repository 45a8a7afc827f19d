package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
)

// UploadURLSigner produces a presigned PUT URL for direct client uploads.
type UploadURLSigner interface {
	PresignPut(ctx context.Context, key string) (string, map[string]string, error)
}

type PrescriptionListResponse struct {
	Prescriptions []models.Prescription `json:"prescriptions"`
	Meta          Meta                  `json:"meta"`
}

type UploadURLResponse struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Key     string            `json:"key"`
}

type PrescriptionService interface {
	Create(ctx context.Context, customerID string, req *models.CreatePrescriptionRequest) (*models.Prescription, *ServiceError)
	GetByID(ctx context.Context, requesterID string, role models.Role, id string) (*models.Prescription, *ServiceError)
	ListMine(ctx context.Context, customerID string, page, limit int) (*PrescriptionListResponse, *ServiceError)
	ListPending(ctx context.Context, page, limit int) (*PrescriptionListResponse, *ServiceError)
	Verify(ctx context.Context, verifierID, prescriptionID string, req *models.VerifyPrescriptionRequest) *ServiceError
	// MatchMedicines resolves an approved, unexpired prescription's
	// free-text medicine mentions against the catalog.
	MatchMedicines(ctx context.Context, prescriptionID string) ([]models.Medicine, *ServiceError)
	FileUploadURL(ctx context.Context, customerID, filename string) (*UploadURLResponse, *ServiceError)
}

type prescriptionServiceImpl struct {
	prescriptions repository.PrescriptionRepository
	medicines     repository.MedicineRepository
	signer        UploadURLSigner
	logger        *zap.Logger
}

func NewPrescriptionService(
	prescriptions repository.PrescriptionRepository,
	medicines repository.MedicineRepository,
	signer UploadURLSigner,
	logger *zap.Logger,
) PrescriptionService {
	return &prescriptionServiceImpl{
		prescriptions: prescriptions,
		medicines:     medicines,
		signer:        signer,
		logger:        logger,
	}
}

func (s *prescriptionServiceImpl) Create(ctx context.Context, customerID string, req *models.CreatePrescriptionRequest) (*models.Prescription, *ServiceError) {
	customerOID, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid customer ID"}
	}
	if req.ExpiryDate != nil && req.ExpiryDate.Before(time.Now().UTC()) {
		return nil, &ServiceError{StatusCode: 400, Message: "Expiry date must be in the future"}
	}

	files := make([]models.PrescriptionFile, len(req.Files))
	now := time.Now().UTC()
	for i, f := range req.Files {
		uploadedAt := f.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = now
		}
		files[i] = models.PrescriptionFile{URL: f.URL, UploadedAt: uploadedAt}
	}

	prescription := &models.Prescription{
		CustomerID:         customerOID,
		Files:              files,
		Doctor:             req.Doctor,
		MedicinesMentioned: req.MedicinesMentioned,
		ExpiryDate:         req.ExpiryDate,
	}

	if err := s.prescriptions.Create(ctx, prescription); err != nil {
		s.logger.Error("Failed to create prescription", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create prescription"}
	}

	s.logger.Info("Prescription submitted",
		zap.String("prescription_id", prescription.ID.Hex()),
		zap.String("customer_id", customerID),
		zap.Int("files", len(prescription.Files)),
	)
	return prescription, nil
}

func (s *prescriptionServiceImpl) GetByID(ctx context.Context, requesterID string, role models.Role, id string) (*models.Prescription, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid prescription ID"}
	}
	prescription, err := s.prescriptions.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Prescription not found"}
		}
		s.logger.Error("Failed to fetch prescription", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch prescription"}
	}
	if role == models.RoleCustomer && prescription.CustomerID.Hex() != requesterID {
		return nil, &ServiceError{StatusCode: 403, Message: "Access denied"}
	}
	return prescription, nil
}

func (s *prescriptionServiceImpl) ListMine(ctx context.Context, customerID string, page, limit int) (*PrescriptionListResponse, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid customer ID"}
	}
	prescriptions, total, err := s.prescriptions.FindByCustomer(ctx, oid, page, limit)
	if err != nil {
		s.logger.Error("Failed to list prescriptions", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch prescriptions"}
	}
	return &PrescriptionListResponse{Prescriptions: prescriptions, Meta: buildMeta(page, limit, total)}, nil
}

func (s *prescriptionServiceImpl) ListPending(ctx context.Context, page, limit int) (*PrescriptionListResponse, *ServiceError) {
	prescriptions, total, err := s.prescriptions.FindPending(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list pending prescriptions", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch prescriptions"}
	}
	return &PrescriptionListResponse{Prescriptions: prescriptions, Meta: buildMeta(page, limit, total)}, nil
}

// Verify performs the one-shot pending→approved/rejected transition.
func (s *prescriptionServiceImpl) Verify(ctx context.Context, verifierID, prescriptionID string, req *models.VerifyPrescriptionRequest) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(prescriptionID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid prescription ID"}
	}
	verifierOID, err := primitive.ObjectIDFromHex(verifierID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid verifier ID"}
	}
	if req.Status != models.PrescriptionStatusApproved && req.Status != models.PrescriptionStatusRejected {
		return &ServiceError{StatusCode: 400, Message: "Status must be approved or rejected"}
	}

	if err := s.prescriptions.Verify(ctx, oid, req.Status, verifierOID, req.Remarks); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return &ServiceError{StatusCode: 404, Message: "Prescription not found"}
		case errors.Is(err, repository.ErrAlreadyVerified):
			return &ServiceError{StatusCode: 400, Message: "Prescription has already been verified"}
		default:
			s.logger.Error("Failed to verify prescription", zap.Error(err))
			return &ServiceError{StatusCode: 500, Message: "Failed to verify prescription"}
		}
	}

	s.logger.Info("Prescription verified",
		zap.String("prescription_id", prescriptionID),
		zap.String("verifier_id", verifierID),
		zap.String("status", string(req.Status)),
	)
	return nil
}

func (s *prescriptionServiceImpl) MatchMedicines(ctx context.Context, prescriptionID string) ([]models.Medicine, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(prescriptionID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid prescription ID"}
	}
	prescription, err := s.prescriptions.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Prescription not found"}
		}
		s.logger.Error("Failed to fetch prescription", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch prescription"}
	}

	now := time.Now().UTC()
	if prescription.Validation.Status != models.PrescriptionStatusApproved {
		return nil, &ServiceError{StatusCode: 400, Message: "Prescription is not approved"}
	}
	if prescription.Expired(now) {
		return nil, &ServiceError{StatusCode: 400, Message: "Prescription has expired"}
	}

	// Best-effort exact-name lookup; a mentioned medicine with no catalog
	// match is simply skipped.
	seen := make(map[primitive.ObjectID]bool)
	var matched []models.Medicine
	for _, mention := range prescription.MedicinesMentioned {
		if mention.Name == "" {
			continue
		}
		medicines, err := s.medicines.MatchActiveByName(ctx, mention.Name)
		if err != nil {
			s.logger.Error("Failed to match medicine", zap.String("name", mention.Name), zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Message: "Failed to match medicines"}
		}
		for _, m := range medicines {
			if !seen[m.ID] {
				matched = append(matched, m)
				seen[m.ID] = true
			}
		}
	}
	return matched, nil
}

func (s *prescriptionServiceImpl) FileUploadURL(ctx context.Context, customerID, filename string) (*UploadURLResponse, *ServiceError) {
	if s.signer == nil {
		return nil, &ServiceError{StatusCode: 503, Message: "File storage is not configured"}
	}
	if filename == "" {
		return nil, &ServiceError{StatusCode: 400, Message: "Filename is required"}
	}

	key := fmt.Sprintf("prescriptions/%s/%d_%s", customerID, time.Now().UTC().Unix(), filename)
	url, headers, err := s.signer.PresignPut(ctx, key)
	if err != nil {
		s.logger.Error("Failed to presign upload URL", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to generate upload URL"}
	}
	return &UploadURLResponse{URL: url, Headers: headers, Key: key}, nil
}
