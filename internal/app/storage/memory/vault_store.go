// Package memory provides in-process store implementations for
// vault.Store, webhook.Store, and enrichment.{Job,Record}Store, used by
// tests that want a fuller fake than a single package's own unexported test
// doubles. cmd/appserver does not use them: it accepts Postgres storage only.
// There is deliberately no in-memory credit.Store: credit.Service issues
// tx.Commit()/tx.Rollback() directly on the concrete *sqlx.Tx that
// Store.BeginTx returns, so a credit ledger always needs a real
// database/sql connection to back it (see DESIGN.md).
package memory

import (
	"sync"

	"context"

	domainvault "github.com/enrichlayer/core/internal/app/domain/vault"
)

type VaultStore struct {
	mu    sync.Mutex
	creds map[string]domainvault.Credential
}

func NewVaultStore() *VaultStore {
	return &VaultStore{creds: make(map[string]domainvault.Credential)}
}

func (s *VaultStore) Insert(ctx context.Context, c domainvault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.ID] = c
	return nil
}

func (s *VaultStore) Get(ctx context.Context, id string) (domainvault.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	return c, ok, nil
}

func (s *VaultStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domainvault.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainvault.Credential
	for _, c := range s.creds {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *VaultStore) GetByWorkspaceAndProvider(ctx context.Context, workspaceID, providerName string) (domainvault.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.WorkspaceID == workspaceID && c.ProviderName == providerName {
			return c, true, nil
		}
	}
	return domainvault.Credential{}, false, nil
}

func (s *VaultStore) UpdateLastUsedAt(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil
	}
	now := nowPtr()
	c.LastUsedAt = now
	s.creds[id] = c
	return nil
}

func (s *VaultStore) UpdateRotated(ctx context.Context, c domainvault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.ID] = c
	return nil
}

func (s *VaultStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, id)
	return nil
}
