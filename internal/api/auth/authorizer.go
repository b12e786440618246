package auth

import (
	"strings"
)

// Authorizer defines the interface for authorization
type Authorizer interface {
	// Authorize checks if the auth context is authorized for the given permission
	Authorize(ctx *AuthContext, permission Permission) error
}

// PermissionAuthorizer implements authorization logic
type PermissionAuthorizer struct {
}

// NewPermissionAuthorizer creates a new permission authorizer
func NewPermissionAuthorizer() *PermissionAuthorizer {
	return &PermissionAuthorizer{}
}

// Authorize checks if the auth context is authorized for the given permission
func (a *PermissionAuthorizer) Authorize(ctx *AuthContext, permission Permission) error {
	if ctx == nil {
		return UnauthorizedError{Reason: "no auth context"}
	}

	if !ctx.HasPermission(permission) {
		return ForbiddenError{
			Action: string(permission),
			Reason: "token does not have required permission",
		}
	}

	return nil
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" value
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", UnauthorizedError{Reason: "missing authorization header"}
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", UnauthorizedError{Reason: "invalid authorization header format"}
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", UnauthorizedError{Reason: "empty bearer token"}
	}
	return token, nil
}
