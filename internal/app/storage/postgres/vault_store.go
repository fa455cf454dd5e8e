package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	domainvault "github.com/enrichlayer/core/internal/app/domain/vault"
)

// VaultStore implements vault.Store on PostgreSQL.
type VaultStore struct {
	db *sqlx.DB
}

func NewVaultStore(db *sqlx.DB) *VaultStore {
	return &VaultStore{db: db}
}

func (s *VaultStore) Insert(ctx context.Context, c domainvault.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_credentials
			(id, workspace_id, provider_name, key_ciphertext, key_iv, key_auth_tag, secret_packed, created_by, created_at, rotated_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.WorkspaceID, c.ProviderName, c.KeyCiphertext, c.KeyIV, c.KeyAuthTag, c.SecretPacked, c.CreatedBy, c.CreatedAt, c.RotatedAt, c.LastUsedAt)
	return err
}

func scanCredential(row interface {
	Scan(dest ...interface{}) error
}) (domainvault.Credential, error) {
	var c domainvault.Credential
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.ProviderName, &c.KeyCiphertext, &c.KeyIV, &c.KeyAuthTag, &c.SecretPacked,
		&c.CreatedBy, &c.CreatedAt, &c.RotatedAt, &c.LastUsedAt)
	return c, err
}

func (s *VaultStore) Get(ctx context.Context, id string) (domainvault.Credential, bool, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, workspace_id, provider_name, key_ciphertext, key_iv, key_auth_tag, secret_packed, created_by, created_at, rotated_at, last_used_at
		FROM api_credentials WHERE id = $1
	`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainvault.Credential{}, false, nil
	}
	if err != nil {
		return domainvault.Credential{}, false, err
	}
	return c, true, nil
}

func (s *VaultStore) GetByWorkspaceAndProvider(ctx context.Context, workspaceID, providerName string) (domainvault.Credential, bool, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, workspace_id, provider_name, key_ciphertext, key_iv, key_auth_tag, secret_packed, created_by, created_at, rotated_at, last_used_at
		FROM api_credentials WHERE workspace_id = $1 AND provider_name = $2
	`, workspaceID, providerName)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainvault.Credential{}, false, nil
	}
	if err != nil {
		return domainvault.Credential{}, false, err
	}
	return c, true, nil
}

func (s *VaultStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domainvault.Credential, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, workspace_id, provider_name, key_ciphertext, key_iv, key_auth_tag, secret_packed, created_by, created_at, rotated_at, last_used_at
		FROM api_credentials WHERE workspace_id = $1 ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domainvault.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *VaultStore) UpdateLastUsedAt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_credentials SET last_used_at = now() WHERE id = $1`, id)
	return err
}

func (s *VaultStore) UpdateRotated(ctx context.Context, c domainvault.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_credentials
		SET key_ciphertext = $2, key_iv = $3, key_auth_tag = $4, secret_packed = $5, rotated_at = $6
		WHERE id = $1
	`, c.ID, c.KeyCiphertext, c.KeyIV, c.KeyAuthTag, c.SecretPacked, c.RotatedAt)
	return err
}

func (s *VaultStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM api_credentials WHERE id = $1`, id)
	return err
}
