package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
)

// ObjectDeleter removes a stored object (medicine image, prescription
// file) by its URL or key. Deletion is best-effort.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, url string) error
}

type MedicineListResponse struct {
	Medicines []models.Medicine `json:"medicines"`
	Meta      Meta              `json:"meta"`
}

type MedicineService interface {
	Create(ctx context.Context, req *models.CreateMedicineRequest) (*models.Medicine, *ServiceError)
	GetByID(ctx context.Context, id string) (*models.Medicine, *ServiceError)
	List(ctx context.Context, filter repository.MedicineListFilter, page, limit int) (*MedicineListResponse, *ServiceError)
	Update(ctx context.Context, id string, req *models.UpdateMedicineRequest) (*models.Medicine, *ServiceError)
	UpdateStock(ctx context.Context, id string, stock int) (*models.Medicine, *ServiceError)
	Deactivate(ctx context.Context, id string) *ServiceError
	// Delete hard-deletes the medicine and releases its image asset.
	Delete(ctx context.Context, id string) *ServiceError
	LowStock(ctx context.Context) ([]models.Medicine, *ServiceError)
	NearExpiry(ctx context.Context) ([]models.Medicine, *ServiceError)
	Expired(ctx context.Context) ([]models.Medicine, *ServiceError)
}

type medicineServiceImpl struct {
	medicines repository.MedicineRepository
	storage   ObjectDeleter
	logger    *zap.Logger
}

func NewMedicineService(medicines repository.MedicineRepository, storage ObjectDeleter, logger *zap.Logger) MedicineService {
	return &medicineServiceImpl{medicines: medicines, storage: storage, logger: logger}
}

func (s *medicineServiceImpl) Create(ctx context.Context, req *models.CreateMedicineRequest) (*models.Medicine, *ServiceError) {
	category := models.MedicineCategory(req.Category)
	if !category.Valid() {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine category"}
	}

	medicine := &models.Medicine{
		Name:                 req.Name,
		Contents:             req.Contents,
		Category:             category,
		Price:                req.Price,
		Stock:                req.Stock,
		PrescriptionRequired: req.PrescriptionRequired,
		ExpiryDate:           req.ExpiryDate,
		Alerts: models.MedicineAlerts{
			LowStock:       req.LowStockThreshold,
			NearExpiryDays: req.NearExpiryDays,
		},
		Image:    req.Image,
		IsActive: true,
	}

	if err := s.medicines.Create(ctx, medicine); err != nil {
		s.logger.Error("Failed to create medicine", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create medicine"}
	}

	s.logger.Info("Medicine created", zap.String("name", medicine.Name), zap.String("category", string(medicine.Category)))
	return medicine, nil
}

func (s *medicineServiceImpl) GetByID(ctx context.Context, id string) (*models.Medicine, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine ID"}
	}
	medicine, err := s.medicines.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Medicine not found"}
		}
		s.logger.Error("Failed to fetch medicine", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch medicine"}
	}
	return medicine, nil
}

func (s *medicineServiceImpl) List(ctx context.Context, filter repository.MedicineListFilter, page, limit int) (*MedicineListResponse, *ServiceError) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine category"}
	}
	medicines, total, err := s.medicines.List(ctx, filter, page, limit)
	if err != nil {
		s.logger.Error("Failed to list medicines", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch medicines"}
	}
	return &MedicineListResponse{Medicines: medicines, Meta: buildMeta(page, limit, total)}, nil
}

func (s *medicineServiceImpl) Update(ctx context.Context, id string, req *models.UpdateMedicineRequest) (*models.Medicine, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine ID"}
	}

	updates := bson.M{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Contents != nil {
		updates["contents"] = req.Contents
	}
	if req.Category != nil {
		category := models.MedicineCategory(*req.Category)
		if !category.Valid() {
			return nil, &ServiceError{StatusCode: 400, Message: "Invalid medicine category"}
		}
		updates["category"] = category
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, &ServiceError{StatusCode: 400, Message: "Price must be non-negative"}
		}
		updates["price"] = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, &ServiceError{StatusCode: 400, Message: "Stock must be non-negative"}
		}
		updates["stock"] = *req.Stock
	}
	if req.PrescriptionRequired != nil {
		updates["prescription_required"] = *req.PrescriptionRequired
	}
	if req.ExpiryDate != nil {
		updates["expiry_date"] = *req.ExpiryDate
	}
	if req.LowStockThreshold != nil {
		updates["alerts.low_stock"] = *req.LowStockThreshold
	}
	if req.NearExpiryDays != nil {
		updates["alerts.near_expiry_days"] = *req.NearExpiryDays
	}
	if req.Image != nil {
		updates["image"] = *req.Image
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return nil, &ServiceError{StatusCode: 400, Message: "No update fields provided"}
	}

	if err := s.medicines.Update(ctx, oid, updates); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Medicine not found"}
		}
		s.logger.Error("Failed to update medicine", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update medicine"}
	}

	medicine, err := s.medicines.FindByID(ctx, oid)
	if err != nil {
		s.logger.Error("Failed to reload medicine", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update medicine"}
	}
	return medicine, nil
}

func (s *medicineServiceImpl) UpdateStock(ctx context.Context, id string, stock int) (*models.Medicine, *ServiceError) {
	if stock < 0 {
		return nil, &ServiceError{StatusCode: 400, Message: "Stock must be non-negative"}
	}
	return s.Update(ctx, id, &models.UpdateMedicineRequest{Stock: &stock})
}

// Deactivate is the soft delete used in the normal flow; the medicine
// stays queryable for historical orders.
func (s *medicineServiceImpl) Deactivate(ctx context.Context, id string) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid medicine ID"}
	}
	if err := s.medicines.Update(ctx, oid, bson.M{"is_active": false}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Medicine not found"}
		}
		s.logger.Error("Failed to deactivate medicine", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to deactivate medicine"}
	}
	return nil
}

func (s *medicineServiceImpl) Delete(ctx context.Context, id string) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid medicine ID"}
	}

	medicine, err := s.medicines.Delete(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Medicine not found"}
		}
		s.logger.Error("Failed to delete medicine", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to delete medicine"}
	}

	if medicine.Image != "" && s.storage != nil {
		if err := s.storage.DeleteObject(ctx, medicine.Image); err != nil {
			s.logger.Warn("Failed to release medicine image",
				zap.String("medicine_id", id),
				zap.String("image", medicine.Image),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Medicine deleted", zap.String("medicine_id", id), zap.String("name", medicine.Name))
	return nil
}

func (s *medicineServiceImpl) LowStock(ctx context.Context) ([]models.Medicine, *ServiceError) {
	medicines, err := s.medicines.LowStock(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch low stock medicines", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch low stock medicines"}
	}
	return medicines, nil
}

// NearExpiry filters active medicines whose expiry falls inside their own
// alert window, computed at request time.
func (s *medicineServiceImpl) NearExpiry(ctx context.Context) ([]models.Medicine, *ServiceError) {
	candidates, err := s.medicines.WithExpiry(ctx, true)
	if err != nil {
		s.logger.Error("Failed to fetch near-expiry candidates", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch near-expiry medicines"}
	}

	now := time.Now().UTC()
	var result []models.Medicine
	for _, m := range candidates {
		days, ok := m.DaysUntilExpiry(now)
		if ok && days >= 0 && days <= m.NearExpiryWindow() {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *medicineServiceImpl) Expired(ctx context.Context) ([]models.Medicine, *ServiceError) {
	medicines, err := s.medicines.Expired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Failed to fetch expired medicines", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch expired medicines"}
	}
	return medicines, nil
}
