package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/golang-jwt/jwt/v5"
)

const opaqueTokenBytes = 32

// Claims is the bearer token payload. Users and customers populate it the
// same way; Username carries the email for customers.
type Claims struct {
	AccountID uint64             `json:"account_id"`
	Username  string             `json:"username"`
	Role      string             `json:"role"`
	Kind      entity.AccountKind `json:"kind"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// NewOpaqueToken returns 256 bits of randomness, hex encoded.
func (i *TokenIssuer) NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (i *TokenIssuer) IssueBearerToken(account *entity.Account) (string, error) {
	now := i.now()
	claims := &Claims{
		AccountID: account.ID,
		Username:  account.ClaimName(),
		Role:      account.Role,
		Kind:      account.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(account.ID, 10),
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

func (i *TokenIssuer) ParseBearerToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.cfg.Secret), nil
	},
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
