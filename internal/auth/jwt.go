package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

type Claims struct {
	UserID string `json:"uid"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// GeneratePair issues an access and a refresh token for userID.
func (tm *TokenManager) GeneratePair(userID string) (access string, refresh string, accessExp time.Time, err error) {
	now := time.Now()
	accessExp = now.Add(tm.accessTTL)

	access, err = tm.sign(userID, typeAccess, now, accessExp, tm.accessSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = tm.sign(userID, typeRefresh, now, now.Add(tm.refreshTTL), tm.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, accessExp, nil
}

func (tm *TokenManager) sign(userID, typ string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAny accepts either token kind and reports whether it was a refresh
// token.
func (tm *TokenManager) ParseAny(tokenStr string) (*Claims, bool, error) {
	if c, err := tm.parse(tokenStr, typeAccess, tm.accessSecret); err == nil {
		return c, false, nil
	}
	if c, err := tm.parse(tokenStr, typeRefresh, tm.refreshSecret); err == nil {
		return c, true, nil
	}
	return nil, false, ErrInvalidToken
}

func (tm *TokenManager) ParseAccess(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, typeAccess, tm.accessSecret)
}

func (tm *TokenManager) ParseRefresh(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, typeRefresh, tm.refreshSecret)
}

func (tm *TokenManager) parse(tokenStr, typ string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Type != typ || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
