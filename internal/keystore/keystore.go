// Package keystore keeps provider API keys in a local SQLite database.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crystaldolphin/tidewire/internal/providers"
)

// ErrNotFound is returned when a provider has no active key.
var ErrNotFound = errors.New("no active key")

// KeyInfo describes a stored key without exposing the secret.
type KeyInfo struct {
	ID        int64     `json:"id"`
	Provider  string    `json:"provider"`
	Prefix    string    `json:"prefix"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// KeyTestResult is the outcome of a successful key check.
type KeyTestResult struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// Store is the credential store.
type Store struct {
	db      *sql.DB
	catalog *providers.Catalog
	client  *http.Client
}

// Open opens (creating if needed) the key database at path. catalog resolves
// provider ids for TestKey.
func Open(path string, catalog *providers.Catalog, client *http.Client) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create keystore directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, catalog: catalog, client: client}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	if s.catalog == nil {
		s.catalog = providers.NewCatalog()
	}
	if s.client == nil {
		s.client = providers.NewHTTPClient(30 * time.Second)
	}
	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id TEXT NOT NULL,
		secret TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (provider_id, secret)
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_api_keys_provider ON api_keys (provider_id, active)`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// LoadKey returns the active secret for providerID.
func (s *Store) LoadKey(ctx context.Context, providerID string) (string, error) {
	var secret string
	err := s.db.QueryRowContext(ctx,
		`SELECT secret FROM api_keys WHERE provider_id = ? AND active = 1 ORDER BY id DESC LIMIT 1`,
		providerID,
	).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", providerID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load key %s: %w", providerID, err)
	}
	return secret, nil
}

// SaveKey stores secret for providerID. When isActive is set it becomes the
// provider's only active key.
func (s *Store) SaveKey(ctx context.Context, providerID, secret string, isActive bool) error {
	providerID = strings.TrimSpace(providerID)
	secret = strings.TrimSpace(secret)
	if providerID == "" || secret == "" {
		return fmt.Errorf("provider and secret are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save key %s: %w", providerID, err)
	}
	defer tx.Rollback()

	if isActive {
		if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE provider_id = ?`, providerID); err != nil {
			return fmt.Errorf("save key %s: %w", providerID, err)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO api_keys (provider_id, secret, active, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (provider_id, secret) DO UPDATE SET active = excluded.active`,
		providerID, secret, isActive, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save key %s: %w", providerID, err)
	}
	return tx.Commit()
}

// List returns every stored key, secrets masked.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, secret, active, created_at FROM api_keys ORDER BY provider_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var (
			k      KeyInfo
			secret string
		)
		if err := rows.Scan(&k.ID, &k.Provider, &secret, &k.Active, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		k.Prefix = mask(secret)
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteProvider removes every key stored for providerID.
func (s *Store) DeleteProvider(ctx context.Context, providerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE provider_id = ?`, providerID)
	if err != nil {
		return 0, fmt.Errorf("delete keys %s: %w", providerID, err)
	}
	return res.RowsAffected()
}

// TestKey checks secret against the provider's model listing endpoint.
func (s *Store) TestKey(ctx context.Context, providerID, secret string) (KeyTestResult, error) {
	profile, err := s.catalog.Get(providerID)
	if err != nil {
		return KeyTestResult{}, err
	}
	models, err := providers.ListModels(ctx, s.client, profile, secret)
	if err != nil {
		return KeyTestResult{}, fmt.Errorf("test key %s: %w", providerID, err)
	}
	return KeyTestResult{Provider: profile.Label(), Models: models}, nil
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
