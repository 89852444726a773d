package auth

import (
	"errors"
	"time"

	"supportdesk-gin/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ===========================================================================
// JWT Service
// Generate và validate JWT tokens cho dashboard (agent console)
// Token gắn với một tenant: agent chỉ thấy dữ liệu của tenant mình
// ===========================================================================

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims custom JWT claims
type Claims struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	AgentName string    `json:"agent_name"`
	jwt.RegisteredClaims
}

// JWTService xử lý JWT tokens
type JWTService struct {
	secret         []byte
	accessDuration time.Duration
}

// NewJWTService tạo JWT service mới
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:         []byte(cfg.Secret),
		accessDuration: cfg.AccessDuration,
	}
}

// GenerateToken tạo access token cho một agent của tenant
func (s *JWTService) GenerateToken(tenantID uuid.UUID, agentName string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessDuration)

	claims := Claims{
		TenantID:  tenantID,
		AgentName: agentName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   tenantID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ValidateToken validates token và trả về claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
