package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carepackage/internal/clock"
	"carepackage/internal/model"
	"carepackage/internal/repository"
	"carepackage/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailTaken is returned by CreateUser when the address is registered.
var ErrEmailTaken = apperror.Validation("email already exists")

// TokenTTL is how long an issued access token stays valid.
const TokenTTL = 24 * time.Hour

// DTOs for Request validation
type CreateUserRequest struct {
	Name          string           `json:"name" binding:"required"`
	Email         string           `json:"email" binding:"required,email"`
	Password      string           `json:"password" binding:"required,min=6"`
	Role          string           `json:"role" binding:"required"`
	ApprovalLimit *decimal.Decimal `json:"approval_limit"`
}

type UpdateUserRequest struct {
	Name          string           `json:"name"`
	Role          string           `json:"role"`
	ApprovalLimit *decimal.Decimal `json:"approval_limit"`
	// ClearApprovalLimit removes the limit; approval_limit alone cannot express NULL.
	ClearApprovalLimit bool `json:"clear_approval_limit"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// DTO for returning User without exposing the password hash
type UserResponse struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Role          string           `json:"role"`
	ApprovalLimit *decimal.Decimal `json:"approval_limit"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

// UserService defines the business logic for brokers, approvers and admins
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	ListApprovers(ctx context.Context, amount string) ([]UserResponse, error)
}

type userService struct {
	repo   repository.UserRepository
	secret []byte
	clock  clock.Clock
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, jwtSecret string, clk clock.Clock) UserService {
	if clk == nil {
		clk = clock.System{}
	}
	return &userService{repo: repo, secret: []byte(jwtSecret), clock: clk}
}

func validateRole(role string) bool {
	switch role {
	case model.RoleAdmin, model.RoleBroker, model.RoleApprover, model.RoleFinance:
		return true
	}
	return false
}

func mapToResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.ApprovalLimit.Valid {
		limit := user.ApprovalLimit.Decimal
		res.ApprovalLimit = &limit
	}
	return res
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if !validateRole(req.Role) {
		return nil, apperror.Validation("invalid role: must be admin, broker, approver or finance")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:     req.Name,
		Email:    email,
		Password: string(hashedPassword),
		Role:     req.Role,
	}
	if req.ApprovalLimit != nil {
		if req.ApprovalLimit.IsNegative() {
			return nil, apperror.Validation("approval limit must not be negative")
		}
		user.ApprovalLimit = decimal.NewNullDecimal(*req.ApprovalLimit)
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, apperror.Validation("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.Validation("invalid email or password")
	}

	expiresAt := s.clock.Now().Add(TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"role":  user.Role,
		"exp":   expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{Token: tokenString, ExpiresAt: expiresAt.Format(time.RFC3339)}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Validation("invalid user id")
	}
	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	users, total, err := s.repo.List(ctx, role, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Validation("invalid user id")
	}
	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	if req.Role != "" {
		if !validateRole(req.Role) {
			return nil, apperror.Validation("invalid role: must be admin, broker, approver or finance")
		}
		user.Role = req.Role
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	switch {
	case req.ClearApprovalLimit:
		user.ApprovalLimit = decimal.NullDecimal{}
	case req.ApprovalLimit != nil:
		if req.ApprovalLimit.IsNegative() {
			return nil, apperror.Validation("approval limit must not be negative")
		}
		user.ApprovalLimit = decimal.NewNullDecimal(*req.ApprovalLimit)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// ListApprovers returns the approvers allowed to sign off a package costing
// amount a year. An empty amount lists every approver holding a limit.
func (s *userService) ListApprovers(ctx context.Context, amount string) ([]UserResponse, error) {
	floor := decimal.Zero
	if amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil || d.IsNegative() {
			return nil, apperror.Validation("invalid amount %q", amount)
		}
		floor = d
	}

	users, err := s.repo.ListApprovers(ctx, floor)
	if err != nil {
		return nil, err
	}
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, nil
}
