package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/ids"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/pkg/models"
)

var (
	ErrTokenMissing  = errors.New("token missing")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrTokenNotFound = errors.New("token not found")
)

// SecretPrefix marks gateway-issued secrets so they are recognizable in
// configs and scrubbers without being guessable.
const SecretPrefix = "gz_"

// secretBytes is the entropy of an issued secret: 32 bytes, 256 bits.
const secretBytes = 32

// Store issues, validates, and revokes bearer tokens. Plaintext secrets
// are returned exactly once at issue time; only sha256 digests are kept,
// in SQLite as the source of truth and in an in-memory index for hot-path
// validation.
type Store struct {
	repo *repositories.TokenRepo

	mu       sync.RWMutex
	byDigest map[string]*models.Token
}

// NewStore creates a token store backed by the given repository.
func NewStore(repo *repositories.TokenRepo) *Store {
	return &Store{
		repo:     repo,
		byDigest: make(map[string]*models.Token),
	}
}

// Load warms the in-memory index from the database. Called once at
// startup; validation still falls back to the database on index misses.
func (s *Store) Load(ctx context.Context) error {
	tokens, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.byDigest[t.Digest] = t
	}
	return nil
}

// Issue mints a new secret and persists its record. A ttl of zero means
// the token never expires; negative ttls are rejected. The returned
// secret is the only copy; callers must hand it to the operator
// immediately.
func (s *Store) Issue(ctx context.Context, name string, scopes []string, ttl time.Duration) (string, *models.Token, error) {
	if ttl < 0 {
		return "", nil, fmt.Errorf("token ttl must not be negative, got %s", ttl)
	}

	secret, err := generateSecret()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	now := time.Now().UTC()
	token := &models.Token{
		ID:        ids.New(),
		Name:      name,
		Digest:    Digest(secret),
		Scopes:    models.StringList(scopes),
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}

	if err := s.repo.Create(ctx, token); err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	s.byDigest[token.Digest] = token
	s.mu.Unlock()

	return secret, token, nil
}

// Validate checks a presented secret and returns the token it belongs to.
// Failures are typed: missing, invalid (malformed or unknown), expired,
// or revoked. The digest comparison is constant-time.
func (s *Store) Validate(ctx context.Context, presented string) (*models.Token, error) {
	if presented == "" {
		return nil, ErrTokenMissing
	}
	if !strings.HasPrefix(presented, SecretPrefix) {
		return nil, ErrTokenInvalid
	}

	candidate := Digest(presented)

	token, err := s.lookup(ctx, candidate)
	if err != nil {
		return nil, err
	}

	// The index is keyed by digest, but the authoritative check is a
	// constant-time comparison so a mismatch costs the same everywhere.
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(token.Digest)) != 1 {
		return nil, ErrTokenInvalid
	}

	if token.Revoked() {
		return nil, ErrTokenRevoked
	}
	if token.Expired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}

	if err := s.repo.TouchLastUsed(ctx, token.ID, time.Now().UTC()); err != nil {
		logging.Debug("failed to record token use: %v", err)
	}

	return token, nil
}

func (s *Store) lookup(ctx context.Context, digest string) (*models.Token, error) {
	s.mu.RLock()
	token, ok := s.byDigest[digest]
	s.mu.RUnlock()
	if ok {
		return token, nil
	}

	// Tokens issued by another process (the CLI against the same
	// database) are not in the index yet.
	token, err := s.repo.GetByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	s.mu.Lock()
	s.byDigest[digest] = token
	s.mu.Unlock()
	return token, nil
}

// Revoke marks a token revoked. Revoking twice is a no-op success;
// revoking an unknown id reports ErrTokenNotFound.
func (s *Store) Revoke(ctx context.Context, id string) error {
	found, err := s.repo.Revoke(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}

	// Refresh the index entry so in-flight validation sees the
	// revocation immediately.
	token, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.byDigest[token.Digest] = token
	s.mu.Unlock()
	return nil
}

// List returns all token records, never secrets.
func (s *Store) List(ctx context.Context) ([]*models.Token, error) {
	return s.repo.List(ctx)
}

// Get returns one token record by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Token, error) {
	token, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
		}
		return nil, err
	}
	return token, nil
}

// Digest returns the hex sha256 of a secret, the only form stored.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func generateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(raw), nil
}
