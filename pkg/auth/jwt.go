package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/model"
)

// JWTService issues and verifies the bearer tokens patients and doctors use.
type JWTService interface {
	GenerateToken(id uuid.UUID, role model.Role) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
}

type jwtService struct {
	secret []byte
	expiry time.Duration
}

func NewJWTService(secret string, expiry time.Duration) JWTService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &jwtService{secret: []byte(secret), expiry: expiry}
}

func (s *jwtService) GenerateToken(id uuid.UUID, role model.Role) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   id.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.expiry).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(tokenStr string) (*model.TokenClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	rawID, ok := claims["id"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing id claim")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid id in token: %w", err)
	}

	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing role claim")
	}

	return &model.TokenClaims{ID: id, Role: model.Role(role)}, nil
}
