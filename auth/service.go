/*
Package auth handles account registration, credential verification, and the
bearer tokens that resolve a request to a principal id.

PURPOSE:
  Every ledger, transfer, reward, and score operation requires a verified
  principal id as a precondition. This package is where that id comes from:
  registration creates the account row, login exchanges phone+password for a
  signed JWT, and Tokens.Verify resolves a bearer token back to the id.

PASSWORDS:
  Argon2id with per-hash salt and encoded parameters (password.go). Login
  failures do not reveal whether the phone or the password was wrong.

SEE ALSO:
  - token.go: JWT issue/verify
  - password.go: Argon2id hashing
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/detofa/points-engine/storage"
)

var (
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrPhoneTaken is returned when the phone number already has an account.
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrReferrerNotFound is returned when the optional referrer phone does
	// not resolve to an account.
	ErrReferrerNotFound = errors.New("referrer phone number not found")

	// ErrInvalidCredentials is returned for any failed login, without
	// distinguishing unknown phone from wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MissingFieldsError lists the required registration fields that were empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Name          string
	Email         string
	Phone         string
	Password      string
	ReferrerPhone string // optional
}

// Service implements registration, login, and account-deletion requests.
type Service struct {
	store  storage.Store
	tokens *Tokens
}

// NewService returns an auth service over the given store and token issuer.
func NewService(store storage.Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

// Register validates the params, hashes the password, and creates the
// account row with a zero balance. The phone number must be unused and the
// referrer, when given, must exist.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*storage.User, error) {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.Email == "" {
		missing = append(missing, "email")
	}
	if p.Phone == "" {
		missing = append(missing, "phone")
	}
	if p.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	if !emailPattern.MatchString(p.Email) {
		return nil, ErrInvalidEmail
	}

	if _, err := s.store.UserByPhone(ctx, p.Phone); err == nil {
		return nil, ErrPhoneTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, err
	}

	if p.ReferrerPhone != "" {
		if _, err := s.store.UserByPhone(ctx, p.ReferrerPhone); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return nil, ErrReferrerNotFound
			}
			return nil, err
		}
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	user := &storage.User{
		ID:            uuid.NewString(),
		Name:          p.Name,
		Email:         p.Email,
		Phone:         p.Phone,
		PasswordHash:  hash,
		ReferrerPhone: p.ReferrerPhone,
		Status:        storage.StatusActive,
		Balance:       0,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// The unique index closes the race between the pre-check and the insert.
		if errors.Is(err, storage.ErrDuplicatePhone) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return user, nil
}

// Login verifies phone+password and returns a signed token plus the user.
func (s *Service) Login(ctx context.Context, phone, password string) (string, *storage.User, error) {
	if phone == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.UserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Status)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// RequestDeletion records a pending account-deletion request. The account
// row itself is never deleted.
func (s *Service) RequestDeletion(ctx context.Context, userID string) error {
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.CreateDeletionRequest(ctx, userID)
}
