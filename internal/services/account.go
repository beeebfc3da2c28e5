package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/storage"
	"github.com/sahana-project/ewaste-api/internal/store"
	"github.com/sahana-project/ewaste-api/types"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
}

// RegisterInput is the public signup form.
type RegisterInput struct {
	Name             string     `json:"name" validate:"required"`
	Email            string     `json:"email" validate:"required,email"`
	Password         string     `json:"password" validate:"required,min=6"`
	Role             types.Role `json:"role" validate:"required"`
	Phone            string     `json:"phone" validate:"required"`
	Address          string     `json:"address" validate:"required"`
	OrganizationName string     `json:"organizationName"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfilePatch carries optional profile changes. Nil fields are left alone.
type ProfilePatch struct {
	Name             *string `json:"name"`
	Phone            *string `json:"phone"`
	Address          *string `json:"address"`
	OrganizationName *string `json:"organizationName"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token   string              `json:"token"`
	Account types.PublicAccount `json:"user"`
}

// AccountService encapsulates registration, login and profile use-cases.
type AccountService struct {
	repo   AccountRepository
	tokens *auth.TokenIssuer
	images ImageStore
	log    *slog.Logger
}

func NewAccountService(repo AccountRepository, tokens *auth.TokenIssuer, images ImageStore, log *slog.Logger) *AccountService {
	return &AccountService{repo: repo, tokens: tokens, images: images, log: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user, collector or organization account and signs the
// new account in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}
	if !in.Role.AllowedAtSignup() {
		return AuthResult{}, ErrForbiddenRole
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	account := types.Account{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Phone:        in.Phone,
		Address:      in.Address,
		IsActive:     true,
	}
	if org := strings.TrimSpace(in.OrganizationName); in.Role == types.RoleOrganization && org != "" {
		account.OrganizationName = &org
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create account: %w", err)
	}
	s.log.InfoContext(ctx, "account registered", "account_id", created.ID, "role", created.Role, "email", created.Email)
	return s.signIn(created)
}

// Login exchanges credentials for a token. A deactivated account is refused
// before its password is checked.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}

	account, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return AuthResult{}, ErrAccountDeactivated
	}
	if !auth.VerifyPassword(in.Password, account.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.signIn(account)
}

func (s *AccountService) signIn(account types.Account) (AuthResult, error) {
	token, err := s.tokens.Issue(account.ID, account.Role)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Account: account.Public()}, nil
}

func (s *AccountService) GetProfile(ctx context.Context, id uuid.UUID) (types.PublicAccount, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.PublicAccount{}, notFound(err, ErrNotFound)
	}
	return account.Public(), nil
}

// UpdateProfile applies patch to the account. A non-nil picture replaces the
// profile picture; the previous image is removed afterwards.
func (s *AccountService) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch, picture *storage.Upload) (types.PublicAccount, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.PublicAccount{}, notFound(err, ErrNotFound)
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		account.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Phone != nil {
		account.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Address != nil {
		account.Address = strings.TrimSpace(*patch.Address)
	}
	if patch.OrganizationName != nil && account.Role == types.RoleOrganization {
		org := strings.TrimSpace(*patch.OrganizationName)
		account.OrganizationName = &org
	}

	previous := account.ProfilePicture
	var uploaded []string
	if picture != nil {
		uploaded, err = s.images.Upload(ctx, "profiles/"+id.String(), []storage.Upload{*picture})
		if err != nil {
			return types.PublicAccount{}, uploadError("profilePicture", err)
		}
		account.ProfilePicture = uploaded[0]
	}

	updated, err := s.repo.Update(ctx, account)
	if err != nil {
		if len(uploaded) > 0 {
			_ = s.images.Remove(ctx, uploaded)
		}
		return types.PublicAccount{}, notFound(err, ErrNotFound)
	}
	if len(uploaded) > 0 && previous != "" {
		if err := s.images.Remove(ctx, []string{previous}); err != nil {
			s.log.WarnContext(ctx, "failed to remove previous profile picture", "account_id", id, "error", err)
		}
	}
	return updated.Public(), nil
}

// SeedAdmin creates the admin account out of band. It is idempotent: when the
// e-mail is already registered nothing changes and created is false.
func (s *AccountService) SeedAdmin(ctx context.Context, name, email, password string) (account types.PublicAccount, created bool, err error) {
	in := RegisterInput{
		Name:     strings.TrimSpace(name),
		Email:    normalizeEmail(email),
		Password: password,
		Role:     types.RoleAdmin,
		Phone:    "-",
		Address:  "-",
	}
	if err := validateStruct(in); err != nil {
		return types.PublicAccount{}, false, err
	}

	existing, err := s.repo.GetByEmail(ctx, in.Email)
	if err == nil {
		return existing.Public(), false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.PublicAccount{}, false, fmt.Errorf("load account: %w", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.PublicAccount{}, false, err
	}
	admin, err := s.repo.Create(ctx, types.Account{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         types.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			existing, err := s.repo.GetByEmail(ctx, in.Email)
			if err != nil {
				return types.PublicAccount{}, false, fmt.Errorf("load account: %w", err)
			}
			return existing.Public(), false, nil
		}
		return types.PublicAccount{}, false, fmt.Errorf("create admin: %w", err)
	}
	s.log.InfoContext(ctx, "admin account seeded", "account_id", admin.ID, "email", admin.Email)
	return admin.Public(), true, nil
}

// uploadError turns a rejected image into a validation error on field.
func uploadError(field string, err error) error {
	if errors.Is(err, storage.ErrUnsupportedImage) {
		return NewValidationError(field, storage.ErrUnsupportedImage.Error())
	}
	return fmt.Errorf("upload images: %w", err)
}
