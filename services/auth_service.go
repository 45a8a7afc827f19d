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

const otpTTL = 10 * time.Minute

type LoginResult struct {
	Token string       `json:"-"`
	User  *models.User `json:"user"`
}

type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, *ServiceError)
	Login(ctx context.Context, req *models.LoginRequest) (*LoginResult, *ServiceError)
	GetProfile(ctx context.Context, userID string) (*models.User, *ServiceError)
	UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.User, *ServiceError)
	ForgotPassword(ctx context.Context, email string) *ServiceError
	ResetPassword(ctx context.Context, req *models.ResetPasswordRequest) *ServiceError
}

type authServiceImpl struct {
	users  repository.UserRepository
	tokens *TokenService
	otps   OTPStore
	mailer EmailSender
	logger *zap.Logger
}

func NewAuthService(users repository.UserRepository, tokens *TokenService, otps OTPStore, mailer EmailSender, logger *zap.Logger) AuthService {
	return &authServiceImpl{users: users, tokens: tokens, otps: otps, mailer: mailer, logger: logger}
}

func (s *authServiceImpl) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, *ServiceError) {
	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to register"}
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: hash,
		Mobile:   req.Mobile,
		Address:  req.Address,
		Role:     role,
		// Pharmacist accounts require admin approval before acting.
		IsVerified: role == models.RoleCustomer,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ServiceError{StatusCode: 409, Message: "Email already registered"}
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to register"}
	}

	s.logger.Info("User registered", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *authServiceImpl) Login(ctx context.Context, req *models.LoginRequest) (*LoginResult, *ServiceError) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 401, Message: "Invalid credentials"}
		}
		s.logger.Error("Failed to look up user", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to log in"}
	}
	if !CheckPassword(user.Password, req.Password) {
		return nil, &ServiceError{StatusCode: 401, Message: "Invalid credentials"}
	}
	if user.Role == models.RolePharmacist && !user.IsVerified {
		return nil, &ServiceError{StatusCode: 403, Message: "Account pending verification"}
	}

	token, err := s.tokens.Generate(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to log in"}
	}

	s.logger.Info("User logged in", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return &LoginResult{Token: token, User: user}, nil
}

func (s *authServiceImpl) GetProfile(ctx context.Context, userID string) (*models.User, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid user ID"}
	}
	user, err := s.users.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "User not found"}
		}
		s.logger.Error("Failed to fetch user", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to fetch profile"}
	}
	return user, nil
}

func (s *authServiceImpl) UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.User, *ServiceError) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: "Invalid user ID"}
	}

	updates := bson.M{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Mobile != nil {
		updates["mobile"] = *req.Mobile
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if len(updates) == 0 {
		return nil, &ServiceError{StatusCode: 400, Message: "No update fields provided"}
	}

	if err := s.users.Update(ctx, oid, updates); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ServiceError{StatusCode: 404, Message: "User not found"}
		}
		s.logger.Error("Failed to update profile", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to update profile"}
	}
	return s.GetProfile(ctx, userID)
}

// ForgotPassword stores a short-lived OTP and mails it. The response does
// not reveal whether the email exists.
func (s *authServiceImpl) ForgotPassword(ctx context.Context, email string) *ServiceError {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		s.logger.Error("Failed to look up user", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to process request"}
	}

	code := GenerateOTP(6)
	if err := s.otps.Put(ctx, user.Email, code, otpTTL); err != nil {
		s.logger.Error("Failed to store reset code", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to process request"}
	}
	if err := s.mailer.Send(user.Email, "Password reset code", OTPEmailBody(code, int(otpTTL.Minutes()))); err != nil {
		s.logger.Error("Failed to send reset email", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to send reset email"}
	}

	s.logger.Info("Password reset code issued", zap.String("email", user.Email))
	return nil
}

func (s *authServiceImpl) ResetPassword(ctx context.Context, req *models.ResetPasswordRequest) *ServiceError {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ServiceError{StatusCode: 400, Message: "Invalid or expired code"}
		}
		s.logger.Error("Failed to look up user", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to reset password"}
	}

	if err := s.otps.Consume(ctx, user.Email, req.OTP); err != nil {
		if errors.Is(err, ErrOTPMismatch) {
			return &ServiceError{StatusCode: 400, Message: "Invalid or expired code"}
		}
		s.logger.Error("Failed to verify reset code", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to reset password"}
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to reset password"}
	}
	if err := s.users.Update(ctx, user.ID, bson.M{"password": hash}); err != nil {
		s.logger.Error("Failed to update password", zap.Error(err))
		return &ServiceError{StatusCode: 500, Message: "Failed to reset password"}
	}

	s.logger.Info("Password reset", zap.String("email", user.Email))
	return nil
}
