package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-calc-api/internal/event"
	"go-calc-api/internal/model"
	"go-calc-api/pkg/apierror"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type AuthService struct {
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int

	users     UserStore
	blacklist BlacklistStore
	notifier  WelcomeNotifier
	bus       event.Bus
}

func NewAuthService(
	jwtSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	bcryptCost int,
	users UserStore,
	blacklist BlacklistStore,
	notifier WelcomeNotifier,
	bus event.Bus,
) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}

	return &AuthService{
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		users:      users,
		blacklist:  blacklist,
		notifier:   notifier,
		bus:        bus,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := validateRegistration(req); err != nil {
		return model.PublicUser{}, err
	}

	if exists, err := s.users.ExistsByEmail(ctx, req.Email); err != nil {
		return model.PublicUser{}, err
	} else if exists {
		return model.PublicUser{}, apierror.Duplicate("user with this email already exists", "email")
	}

	if exists, err := s.users.ExistsByUsername(ctx, req.Username); err != nil {
		return model.PublicUser{}, err
	} else if exists {
		return model.PublicUser{}, apierror.Duplicate("user with this username already exists", "username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.PublicUser{}, err
	}

	s.publish(event.TypeUserRegistered, user.ID, user.Public())

	if s.notifier != nil {
		// Mail delivery must never fail or delay the registration response.
		go func(u model.User) {
			if err := s.notifier.SendWelcome(u); err != nil {
				slog.Warn("welcome email failed", "user_id", u.ID, "error", err)
			}
		}(user)
	}

	return user.Public(), nil
}

// Login resolves the credential by username or email. A missing user and a
// wrong password produce the same response.
func (s *AuthService) Login(ctx context.Context, login string, password string) (model.TokenPair, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}

	return s.issueTokenPair(user)
}

// Refresh exchanges a refresh token for a new pair. The presented token's jti
// is blacklisted first; losing the insert race means the token was already
// exchanged or revoked, and the exchange fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, expiresAt, err := s.validate(ctx, refreshToken, tokenTypeRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}

	inserted, err := s.blacklist.Insert(ctx, claims.TokenID, expiresAt)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !inserted {
		return model.TokenPair{}, apierror.Unauthorized("refresh token is no longer valid")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized("refresh token is no longer valid")
	}

	return s.issueTokenPair(user)
}

// Revoke blacklists a token until its natural expiry. Revoking an already
// revoked token is a no-op success.
func (s *AuthService) Revoke(ctx context.Context, tokenString string) error {
	claims, expiresAt, err := s.parseToken(tokenString, "")
	if err != nil {
		return err
	}

	if _, err := s.blacklist.Insert(ctx, claims.TokenID, expiresAt); err != nil {
		return err
	}
	return nil
}

// ValidateToken verifies signature, expiry, kind and blacklist state. Every
// failure mode maps to the same Unauthorized error.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string, expectedType string) (*model.AuthClaims, error) {
	claims, _, err := s.validate(ctx, tokenString, expectedType)
	return claims, err
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) validate(ctx context.Context, tokenString string, expectedType string) (*model.AuthClaims, time.Time, error) {
	claims, expiresAt, err := s.parseToken(tokenString, expectedType)
	if err != nil {
		return nil, time.Time{}, err
	}

	revoked, err := s.blacklist.Contains(ctx, claims.TokenID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if revoked {
		return nil, time.Time{}, apierror.Unauthorized("invalid token")
	}

	return claims, expiresAt, nil
}

// parseToken checks signature, expiry and claim shape but does not consult
// the blacklist. Revoke relies on that to stay idempotent.
func (s *AuthService) parseToken(tokenString string, expectedType string) (*model.AuthClaims, time.Time, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthorized("invalid token signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, time.Time{}, apierror.Unauthorized("invalid token")
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, time.Time{}, apierror.Unauthorized("invalid token claims")
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, time.Time{}, apierror.Unauthorized("invalid token type")
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" || claims.TokenID == "" {
		return nil, time.Time{}, apierror.Unauthorized("invalid token subject")
	}

	expiresAt := time.Now().UTC()
	if exp, expErr := claimsMap.GetExpirationTime(); expErr == nil && exp != nil {
		expiresAt = exp.Time
	}

	return claims, expiresAt, nil
}

func (s *AuthService) issueTokenPair(user model.User) (model.TokenPair, error) {
	now := time.Now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"typ":      tokenTypeAccess,
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"typ":      tokenTypeRefresh,
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		User:         user.Public(),
	}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) publish(typ event.Type, actorID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActorID:   actorID,
	})
}

func validateRegistration(req model.RegisterRequest) error {
	if req.Username == "" {
		return apierror.Validation("username is required", "username")
	}
	if len(req.Username) < 3 || len(req.Username) > 30 {
		return apierror.Validation("username must be between 3 and 30 characters", "username")
	}

	if req.Email == "" {
		return apierror.Validation("email is required", "email")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apierror.Validation("email address is invalid", "email")
	}

	if err := validatePassword(req.Password); err != nil {
		return err
	}

	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return apierror.Validation("passwords do not match", "confirm_password")
	}

	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return apierror.Validation("password must be at least 8 characters", "password")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return apierror.Validation("password must contain an uppercase letter", "password")
	}
	if !hasLower {
		return apierror.Validation("password must contain a lowercase letter", "password")
	}
	if !hasDigit {
		return apierror.Validation("password must contain a digit", "password")
	}

	return nil
}
