package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
)

type DeliveryBoyLoginResult struct {
	Token              string              `json:"-"`
	DeliveryBoy        *models.DeliveryBoy `json:"delivery_boy"`
	MustChangePassword bool                `json:"must_change_password"`
}

type DeliveryBoyService interface {
	// Create registers a delivery-boy account owned by the given
	// pharmacist, mails the generated credentials, and deletes the
	// account again if the mail cannot be sent.
	Create(ctx context.Context, pharmacistID string, req *models.CreateDeliveryBoyRequest) (*models.DeliveryBoy, *ServiceError)
	ListByPharmacist(ctx context.Context, pharmacistID string) ([]models.DeliveryBoy, *ServiceError)
	Login(ctx context.Context, req *models.LoginRequest) (*DeliveryBoyLoginResult, *ServiceError)
	ChangePassword(ctx context.Context, deliveryBoyID string, req *models.ChangePasswordRequest) *ServiceError
	SetActive(ctx context.Context, pharmacistID, deliveryBoyID string, active bool) *ServiceError
	// DashboardStats serves the delivery dashboard; there is no tracking
	// data source behind it yet.
	DashboardStats(ctx context.Context, deliveryBoyID string) (*models.DeliveryStats, *ServiceError)
}

type deliveryBoyServiceImpl struct {
	deliveryBoys repository.DeliveryBoyRepository
	users        repository.UserRepository
	tokens       *TokenService
	mailer       EmailSender
	logger       *zap.Logger
}

func NewDeliveryBoyService(
	deliveryBoys repository.DeliveryBoyRepository,
	users repository.UserRepository,
	tokens *TokenService,
	mailer EmailSender,
	logger *zap.Logger,
) DeliveryBoyService {
	return &deliveryBoyServiceImpl{
		deliveryBoys: deliveryBoys,
		users:        users,
		tokens:       tokens,
		mailer:       mailer,
		logger:       logger,
	}
}

func (s *deliveryBoyServiceImpl) Create(ctx context.Context, pharmacistID string, req *models.CreateDeliveryBoyRequest) (*models.DeliveryBoy, *ServiceError) {
	pharmacistOID, err := primitive.ObjectIDFromHex(pharmacistID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid pharmacist ID"}
	}

	// Referential check: the owner must be a verified pharmacist.
	pharmacist, err := s.users.FindByID(ctx, pharmacistOID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Pharmacist not found"}
		}
		s.logger.Error("Failed to load pharmacist", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create delivery boy"}
	}
	if pharmacist.Role != models.RolePharmacist {
		return nil, &ServiceError{StatusCode: 400, Message: "Referenced user is not a pharmacist"}
	}
	if !pharmacist.IsVerified {
		return nil, &ServiceError{StatusCode: 403, Message: "Pharmacist account is not verified"}
	}

	tempPassword := GenerateTempPassword(12)
	hash, err := HashPassword(tempPassword)
	if err != nil {
		s.logger.Error("Failed to hash temp password", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create delivery boy"}
	}

	boy := &models.DeliveryBoy{
		Name:              req.Name,
		Email:             req.Email,
		Password:          hash,
		Mobile:            req.Mobile,
		PharmacistID:      pharmacistOID,
		IsActive:          true,
		IsPasswordChanged: false,
	}

	if err := s.deliveryBoys.Create(ctx, boy); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ServiceError{StatusCode: 409, Message: "Email already registered"}
		}
		s.logger.Error("Failed to create delivery boy", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create delivery boy"}
	}

	// Compensating action: the account is only useful with its emailed
	// credentials, so a failed send rolls the creation back.
	if err := s.mailer.Send(boy.Email, "Your delivery account", CredentialsEmailBody(boy.Name, boy.Email, tempPassword)); err != nil {
		s.logger.Error("Credential email failed, rolling back account",
			zap.String("email", boy.Email),
			zap.Error(err),
		)
		if delErr := s.deliveryBoys.Delete(ctx, boy.ID); delErr != nil {
			s.logger.Error("Rollback delete failed", zap.String("delivery_boy_id", boy.ID.Hex()), zap.Error(delErr))
		}
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to send credential email"}
	}

	s.logger.Info("Delivery boy created",
		zap.String("email", boy.Email),
		zap.String("pharmacist_id", pharmacistID),
	)
	return boy, nil
}

func (s *deliveryBoyServiceImpl) ListByPharmacist(ctx context.Context, pharmacistID string) ([]models.DeliveryBoy, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(pharmacistID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid pharmacist ID"}
	}
	boys, err := s.deliveryBoys.FindByPharmacist(ctx, oid)
	if err != nil {
		s.logger.Error("Failed to list delivery boys", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch delivery boys"}
	}
	return boys, nil
}

func (s *deliveryBoyServiceImpl) Login(ctx context.Context, req *models.LoginRequest) (*DeliveryBoyLoginResult, *ServiceError) {
	boy, err := s.deliveryBoys.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 401, Message: "Invalid credentials"}
		}
		s.logger.Error("Failed to look up delivery boy", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to log in"}
	}
	if !boy.IsActive {
		return nil, &ServiceError{StatusCode: 403, Message: "Account is deactivated"}
	}
	if !CheckPassword(boy.Password, req.Password) {
		return nil, &ServiceError{StatusCode: 401, Message: "Invalid credentials"}
	}

	token, err := s.tokens.Generate(boy.ID.Hex(), boy.Email, models.RoleDeliveryBoy)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to log in"}
	}

	return &DeliveryBoyLoginResult{
		Token:              token,
		DeliveryBoy:        boy,
		MustChangePassword: !boy.IsPasswordChanged,
	}, nil
}

func (s *deliveryBoyServiceImpl) ChangePassword(ctx context.Context, deliveryBoyID string, req *models.ChangePasswordRequest) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(deliveryBoyID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid delivery boy ID"}
	}
	boy, err := s.deliveryBoys.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Delivery boy not found"}
		}
		s.logger.Error("Failed to load delivery boy", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to change password"}
	}
	if !CheckPassword(boy.Password, req.OldPassword) {
		return &ServiceError{StatusCode: 401, Message: "Invalid credentials"}
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to change password"}
	}
	updates := bson.M{"password": hash, "is_password_changed": true}
	if err := s.deliveryBoys.Update(ctx, oid, updates); err != nil {
		s.logger.Error("Failed to update password", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to change password"}
	}

	s.logger.Info("Delivery boy password changed", zap.String("delivery_boy_id", deliveryBoyID))
	return nil
}

func (s *deliveryBoyServiceImpl) SetActive(ctx context.Context, pharmacistID, deliveryBoyID string, active bool) *ServiceError {
	oid, err := primitive.ObjectIDFromHex(deliveryBoyID)
	if err != nil {
		return &ServiceError{StatusCode: 400, Message: "Invalid delivery boy ID"}
	}
	boy, err := s.deliveryBoys.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 404, Message: "Delivery boy not found"}
		}
		s.logger.Error("Failed to load delivery boy", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to update delivery boy"}
	}
	if boy.PharmacistID.Hex() != pharmacistID {
		return &ServiceError{StatusCode: 403, Message: "Delivery boy belongs to another pharmacist"}
	}

	if err := s.deliveryBoys.Update(ctx, oid, bson.M{"is_active": active}); err != nil {
		s.logger.Error("Failed to update delivery boy", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to update delivery boy"}
	}
	return nil
}

func (s *deliveryBoyServiceImpl) DashboardStats(ctx context.Context, deliveryBoyID string) (*models.DeliveryStats, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(deliveryBoyID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid delivery boy ID"}
	}
	if _, err := s.deliveryBoys.FindByID(ctx, oid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "Delivery boy not found"}
		}
		s.logger.Error("Failed to load delivery boy", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch stats"}
	}
	return &models.DeliveryStats{}, nil
}
