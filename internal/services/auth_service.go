package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewAuthService builds the service. secret is copied; later changes to the
// caller's slice have no effect.
func NewAuthService(userRepo repository.UserRepository, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(secret),
		accessTTL: ttl,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Tests use it to mint expired tokens.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User      UserInfo
	Token     string
	ExpiresAt time.Time
}

type UserInfo struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type AccessClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if err := validateRegister(in); err != nil {
		return AuthResult{}, err
	}

	if err := s.ensureIdentityAvailable(ctx, in.Username, in.Email); err != nil {
		return AuthResult{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now().UTC()
	newUser := &user.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The unique indexes settle races the pre-check above cannot see.
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		return AuthResult{}, err
	}

	return s.issue(*newUser)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password are required: %w", pulse_errors.ErrInvalidInput)
	}

	u, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pulse_errors.ErrNotFound) {
			return AuthResult{}, fmt.Errorf("invalid credentials: %w", pulse_errors.ErrUnauthorized)
		}
		return AuthResult{}, err
	}

	if err := comparePassword(u.PasswordHash, in.Password); err != nil {
		return AuthResult{}, fmt.Errorf("invalid credentials: %w", pulse_errors.ErrUnauthorized)
	}

	return s.issue(u)
}

// Verify checks signature, algorithm and expiry and returns the identity the
// token carries. It never touches the store.
func (s *AuthService) Verify(tokenString string) (user.Identity, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return user.Identity{}, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return user.Identity{}, pulse_errors.ErrUnauthorized
	}

	return user.Identity{UserID: userID, Username: claims.Username}, nil
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, pulse_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pulse_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", pulse_errors.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, pulse_errors.ErrUnauthorized
	}

	return *claims, nil
}

func (s *AuthService) issue(u user.User) (AuthResult, error) {
	token, expiresAt, err := s.newAccessToken(u.ID, u.Username)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:      toUserInfo(u),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) newAccessToken(userID uuid.UUID, username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)

	claims := AccessClaims{
		UserID:   userID.String(),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func (s *AuthService) ensureIdentityAvailable(ctx context.Context, username, email string) error {
	if _, err := s.userRepo.GetUserByEmail(ctx, email); err == nil {
		return fmt.Errorf("email already registered: %w", pulse_errors.ErrAlreadyExists)
	} else if !errors.Is(err, pulse_errors.ErrNotFound) {
		return err
	}

	if _, err := s.userRepo.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("username already taken: %w", pulse_errors.ErrAlreadyExists)
	} else if !errors.Is(err, pulse_errors.ErrNotFound) {
		return err
	}

	return nil
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, pulse_errors.ErrInvalidInput):
		return 400
	case errors.Is(err, pulse_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, pulse_errors.ErrForbidden):
		return 403
	case errors.Is(err, pulse_errors.ErrNotFound):
		return 404
	case errors.Is(err, pulse_errors.ErrAlreadyExists):
		return 409
	case errors.Is(err, pulse_errors.ErrRateLimited):
		return 429
	case errors.Is(err, pulse_errors.ErrStorage), errors.Is(err, pulse_errors.ErrServiceUnavailable):
		return 503
	default:
		return 500
	}
}

type ctxKey string

var userIDKey ctxKey = "user_id"
var usernameKey ctxKey = "username"

func WithIdentityContext(ctx context.Context, id user.Identity) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id.UserID)
	ctx = context.WithValue(ctx, usernameKey, id.Username)
	return ctx
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

func validateRegister(in RegisterInput) error {
	if n := utf8.RuneCountInString(in.Username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("username must be %d-%d characters: %w", minUsernameLen, maxUsernameLen, pulse_errors.ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email is invalid: %w", pulse_errors.ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("password must be %d-%d characters: %w", minPasswordLen, maxPasswordLen, pulse_errors.ErrInvalidInput)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func toUserInfo(u user.User) UserInfo {
	info := UserInfo{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if u.AvatarURL.Valid {
		info.AvatarURL = u.AvatarURL.String
	}
	return info
}
