package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/auth/repository"
	"foratask-backend/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUsecase resolves callers from bearer tokens and tracks their push devices.
type AuthUsecase interface {
	ValidateToken(tokenString string) (*authdomain.Actor, error)
	IssueToken(actor authdomain.Actor, ttl time.Duration) (string, error)
	RegisterPushToken(ctx context.Context, userID, token, deviceInfo string) error
	UnregisterPushToken(ctx context.Context, userID, token string) error
	Lookup(ctx context.Context, userID string) (*authdomain.Endpoint, error)
	ForgetToken(ctx context.Context, token string) error
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	tokenRepo repository.PushTokenRepository
	config    *config.Config
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(tokenRepo repository.PushTokenRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		tokenRepo: tokenRepo,
		config:    cfg,
	}
}

func (u *authUsecase) IssueToken(actor authdomain.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", errors.New("user id is required")
	}
	if actor.Role == "" {
		actor.Role = authdomain.RoleUser
	}
	if ttl <= 0 {
		ttl = u.config.JWTAccessExpiry
	}

	claims := jwt.MapClaims{
		"user_id":    actor.ID,
		"company_id": actor.CompanyID,
		"role":       string(actor.Role),
		"exp":        time.Now().Add(ttl).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid token claims")
	}

	companyID, _ := claims["company_id"].(string)
	role, _ := claims["role"].(string)

	actor := &authdomain.Actor{
		ID:        userID,
		CompanyID: companyID,
		Role:      authdomain.RoleUser,
	}
	if strings.EqualFold(role, string(authdomain.RoleAdmin)) {
		actor.Role = authdomain.RoleAdmin
	}

	return actor, nil
}

func (u *authUsecase) RegisterPushToken(ctx context.Context, userID, token, deviceInfo string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	return u.tokenRepo.SaveToken(ctx, userID, token, deviceInfo)
}

func (u *authUsecase) UnregisterPushToken(ctx context.Context, userID, token string) error {
	deleted, err := u.tokenRepo.DeleteUserToken(ctx, userID, token)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.New("token not found")
	}
	return nil
}

// Lookup returns the user's push endpoint, or nil when no device is registered.
func (u *authUsecase) Lookup(ctx context.Context, userID string) (*authdomain.Endpoint, error) {
	tokens, err := u.tokenRepo.GetTokensByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	endpoint := &authdomain.Endpoint{UserID: userID}
	for _, t := range tokens {
		endpoint.Tokens = append(endpoint.Tokens, t.Token)
	}
	return endpoint, nil
}

func (u *authUsecase) ForgetToken(ctx context.Context, token string) error {
	return u.tokenRepo.DeleteToken(ctx, token)
}
