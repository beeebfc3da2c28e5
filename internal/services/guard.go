package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/store"
	"github.com/sahana-project/ewaste-api/types"
)

// Guard resolves bearer tokens to accounts.
type Guard struct {
	accounts AccountRepository
	tokens   *auth.TokenIssuer
}

func NewGuard(accounts AccountRepository, tokens *auth.TokenIssuer) *Guard {
	return &Guard{accounts: accounts, tokens: tokens}
}

// Authenticate verifies token and loads the account it names. A bad token is
// ErrUnauthenticated; a deleted or deactivated account fails separately.
func (g *Guard) Authenticate(ctx context.Context, token string) (types.Account, error) {
	identity, ok := g.tokens.Verify(token)
	if !ok {
		return types.Account{}, ErrUnauthenticated
	}

	account, err := g.accounts.GetByID(ctx, identity.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return types.Account{}, ErrAccountDeactivated
	}
	return account, nil
}

// Authorize reports whether the account holds one of roles.
func Authorize(account types.Account, roles ...types.Role) bool {
	return slices.Contains(roles, account.Role)
}

// CanModify reports whether actor may change a resource owned by ownerID.
// Admins pass only when allowAdmin is set.
func CanModify(actor types.Account, ownerID uuid.UUID, allowAdmin bool) bool {
	if actor.ID == ownerID {
		return true
	}
	return allowAdmin && actor.Role == types.RoleAdmin
}

func requireRole(actor types.Account, roles ...types.Role) error {
	if !Authorize(actor, roles...) {
		return ErrForbidden
	}
	return nil
}
