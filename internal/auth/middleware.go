package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User  *domain.User
	Roles []string
	Actor domain.Actor
}

// AuthMiddleware validates bearer tokens and loads principals. Support staff
// missing from the user table are provisioned from their token claims.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	profile, err := claims.Profile()
	if err != nil {
		return apperrors.NewUnauthorized("invalid token subject")
	}

	role := domain.RoleFromNames(claims.Roles)
	user, err := m.loadUser(c.UserContext(), profile, role)
	if err != nil {
		return err
	}

	c.Locals(principalKey, &Principal{
		User:  user,
		Roles: claims.Roles,
		Actor: domain.Actor{UserID: user.ID, Role: role},
	})
	return c.Next()
}

func (m *AuthMiddleware) loadUser(ctx context.Context, profile domain.User, role domain.Role) (*domain.User, error) {
	user, err := m.users.GetByID(ctx, profile.ID)
	switch {
	case err == nil:
		if !profileChanged(user, profile) {
			return user, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		if role == domain.RoleNone {
			return nil, apperrors.NewUnauthorized("user not found")
		}
	default:
		return nil, apperrors.NewStorageUnavailable(err)
	}

	if err := m.users.Upsert(ctx, &profile); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewUnauthorized("email is linked to another user")
		}
		return nil, apperrors.NewStorageUnavailable(err)
	}
	return &profile, nil
}

func profileChanged(stored *domain.User, claimed domain.User) bool {
	return (claimed.Email != "" && !strings.EqualFold(claimed.Email, stored.Email)) ||
		(claimed.FirstName != "" && claimed.FirstName != stored.FirstName) ||
		(claimed.LastName != "" && claimed.LastName != stored.LastName)
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ActorFromContext returns the workflow actor of the authenticated caller.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor, nil
}
