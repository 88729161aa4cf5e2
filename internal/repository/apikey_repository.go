package repository

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
)

// APIKeyRepository stores tenant API keys. Lookups go through a SHA-256
// digest; the key material itself is kept fernet-encrypted at rest so a
// leaked database does not leak usable keys.
type APIKeyRepository struct {
	db  *sql.DB
	key *fernet.Key
}

// NewAPIKeyRepository creates an APIKeyRepository. fernetKey may be empty,
// which disables key creation but still allows digest lookups.
func NewAPIKeyRepository(db *sql.DB, fernetKey string) (*APIKeyRepository, error) {
	repo := &APIKeyRepository{db: db}
	if fernetKey != "" {
		k, err := fernet.DecodeKey(fernetKey)
		if err != nil {
			return nil, fmt.Errorf("invalid fernet key: %w", err)
		}
		repo.key = k
	}
	return repo, nil
}

func digest(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Create stores a new API key for a tenant and returns its id.
func (s *APIKeyRepository) Create(masterUserID, apiKey string) (string, error) {
	if s.key == nil {
		return "", fmt.Errorf("api key encryption not configured")
	}
	encrypted, err := fernet.EncryptAndSign([]byte(apiKey), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt api key: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(`
		INSERT INTO api_key (id, master_user_id, key_digest, encrypted_key)
		VALUES (?, ?, ?, ?)
	`, id, masterUserID, digest(apiKey), string(encrypted))
	if err != nil {
		return "", fmt.Errorf("failed to insert into api_key table: %w", err)
	}
	return id, nil
}

// Resolve maps a presented API key to its tenant.
func (s *APIKeyRepository) Resolve(apiKey string) (string, error) {
	var masterUserID string
	err := s.db.QueryRow(`
		SELECT master_user_id FROM api_key WHERE key_digest = ?
	`, digest(apiKey)).Scan(&masterUserID)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("failed to query api_key table: %w", err)
	}
	return masterUserID, nil
}
