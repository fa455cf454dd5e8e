package vault

import (
	"context"

	domainvault "github.com/enrichlayer/core/internal/app/domain/vault"
)

// Store persists Credential rows. Implementations live in
// internal/app/storage/{postgres,memory}.
type Store interface {
	Insert(ctx context.Context, c domainvault.Credential) error
	Get(ctx context.Context, id string) (domainvault.Credential, bool, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]domainvault.Credential, error)
	GetByWorkspaceAndProvider(ctx context.Context, workspaceID, providerName string) (domainvault.Credential, bool, error)
	UpdateLastUsedAt(ctx context.Context, id string) error
	UpdateRotated(ctx context.Context, c domainvault.Credential) error
	Delete(ctx context.Context, id string) error
}
