package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TokenStore defines the interface for token storage
type TokenStore interface {
	// ValidateToken validates a token and returns the APIToken
	ValidateToken(token string) (*APIToken, error)
	// CreateToken creates a new token and returns the plain token and APIToken
	CreateToken(name string, permissions []Permission, expiresAt int64) (string, *APIToken, error)
	// DeleteToken deletes a token by its hash
	DeleteToken(tokenHash string) error
}

// InMemoryTokenStore is an in-memory implementation of TokenStore
type InMemoryTokenStore struct {
	tokens map[string]*APIToken // tokenHash -> APIToken
	mu     sync.RWMutex
}

// NewInMemoryTokenStore creates a new in-memory token store
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{
		tokens: make(map[string]*APIToken),
	}
}

// NewTokenStoreFromSpecs builds a store from "token:perm|perm" entries. An
// entry without permissions grants read access.
func NewTokenStoreFromSpecs(specs []string) (*InMemoryTokenStore, error) {
	store := NewInMemoryTokenStore()
	for i, spec := range specs {
		token, perms, err := ParseTokenSpec(spec)
		if err != nil {
			return nil, err
		}
		store.AddToken(token, fmt.Sprintf("config-%d", i), perms, 0)
	}
	return store, nil
}

// ParseTokenSpec parses a "token:perm|perm" entry
func ParseTokenSpec(spec string) (string, []Permission, error) {
	token, permList, _ := strings.Cut(strings.TrimSpace(spec), ":")
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil, InvalidTokenSpecError{Spec: spec, Reason: "empty token"}
	}

	if strings.TrimSpace(permList) == "" {
		return token, []Permission{PermissionCacheRead}, nil
	}

	var perms []Permission
	for _, name := range strings.Split(permList, "|") {
		p, err := ParsePermission(name)
		if err != nil {
			return "", nil, InvalidTokenSpecError{Spec: spec, Reason: err.Error()}
		}
		perms = append(perms, p)
	}
	return token, perms, nil
}

// hashToken hashes a token using SHA-256
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateToken validates a token and returns the APIToken
func (s *InMemoryTokenStore) ValidateToken(token string) (*APIToken, error) {
	tokenHash := hashToken(token)

	s.mu.RLock()
	defer s.mu.RUnlock()

	apiToken, exists := s.tokens[tokenHash]
	if !exists {
		return nil, TokenNotFoundError{TokenHash: tokenHash}
	}

	// Check expiration
	now := time.Now().Unix()
	if apiToken.IsExpired(now) {
		return nil, UnauthorizedError{Reason: "token expired"}
	}

	return apiToken, nil
}

// CreateToken creates a new token and returns the plain token and APIToken
func (s *InMemoryTokenStore) CreateToken(name string, permissions []Permission, expiresAt int64) (string, *APIToken, error) {
	// Generate a new UUID-based token
	plainToken := uuid.New().String()
	apiToken := s.AddToken(plainToken, name, permissions, expiresAt)

	log.Info().
		Str("name", name).
		Int("permissions", len(permissions)).
		Msg("API token created")

	return plainToken, apiToken, nil
}

// AddToken registers a known plain token
func (s *InMemoryTokenStore) AddToken(plainToken, name string, permissions []Permission, expiresAt int64) *APIToken {
	apiToken := &APIToken{
		TokenHash:   hashToken(plainToken),
		Name:        name,
		Permissions: permissions,
		CreatedAt:   time.Now().Unix(),
		ExpiresAt:   expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[apiToken.TokenHash] = apiToken
	return apiToken
}

// DeleteToken deletes a token by its hash
func (s *InMemoryTokenStore) DeleteToken(tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[tokenHash]; !exists {
		return TokenNotFoundError{TokenHash: tokenHash}
	}

	delete(s.tokens, tokenHash)

	log.Info().
		Str("token_hash", tokenHash).
		Msg("API token deleted")

	return nil
}

// Len returns the number of registered tokens
func (s *InMemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// AddDefaultToken adds an admin token for development
func (s *InMemoryTokenStore) AddDefaultToken() (string, error) {
	plainToken, _, err := s.CreateToken(
		"default",
		[]Permission{PermissionCacheAdmin},
		0, // No expiration
	)
	if err != nil {
		return "", fmt.Errorf("failed to create default token: %w", err)
	}

	log.Info().
		Str("token", plainToken).
		Msg("Default API token created (for development/testing)")

	return plainToken, nil
}
