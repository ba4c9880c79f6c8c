package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrMissingAddress   = errors.New("missing address in claims")
)

// Claims is the verified identity carried by a wallet-auth token
type Claims struct {
	Address   string
	Subject   string
	TokenID   string
	Issuer    string
	ExpiresAt time.Time
}

// JWTService verifies HS256 tokens minted by the wallet-auth service.
// The address claim name is configurable since issuers disagree on it.
type JWTService struct {
	secret       []byte
	issuer       string
	addressClaim string
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	addressClaim := cfg.AddressClaim
	if addressClaim == "" {
		addressClaim = "address"
	}
	return &JWTService{
		secret:       []byte(cfg.Secret),
		issuer:       cfg.Issuer,
		addressClaim: addressClaim,
	}
}

// ValidateAccessToken verifies the signature and time claims and extracts
// the normalized caller address
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mapClaims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	raw, _ := mapClaims[s.addressClaim].(string)
	address := partner.NormalizeAddress(raw)
	if address == "" {
		return nil, ErrMissingAddress
	}

	claims := &Claims{Address: address}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	if id, ok := mapClaims["jti"].(string); ok {
		claims.TokenID = id
	}
	if exp, _ := mapClaims.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// IssueToken signs a token for address. Used by local tooling and tests;
// production tokens come from the wallet-auth service.
func (s *JWTService) IssueToken(address string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"jti":          uuid.NewString(),
		"sub":          address,
		"iat":          now.Unix(),
		"nbf":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
		s.addressClaim: address,
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
