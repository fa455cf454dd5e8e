package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enrichlayer/core/internal/app/apierr"
	domainvault "github.com/enrichlayer/core/internal/app/domain/vault"
	"github.com/enrichlayer/core/pkg/logger"
)

// Service is the Credential Vault's service layer, grounded on
// internal/app/services/secrets.Service's shape: a store, a logger, and a
// functional-options constructor for swapping collaborators in tests.
type Service struct {
	store Store
	audit *AuditLog
	log   *logger.Logger
	clock func() time.Time
}

// Option configures a Service at construction, mirroring the teacher's
// secrets.Option pattern (e.g. WithCipher) generalized here.
type Option func(*Service)

func WithAuditLog(a *AuditLog) Option {
	return func(s *Service) { s.audit = a }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func New(store Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		audit: NewAuditLog(500, nil),
		log:   log,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store implements spec 4.3's store operation: derives the workspace key,
// encrypts key and secret independently (write-verified), and persists.
func (s *Service) Store(ctx context.Context, mk MasterKey, workspaceID, providerName, key, secret, createdBy string) (domainvault.Credential, error) {
	wsKey, err := deriveWorkspaceKey(mk, workspaceID)
	if err != nil {
		return domainvault.Credential{}, err
	}

	encKey, err := encryptWithVerify(key, wsKey)
	if err != nil {
		return domainvault.Credential{}, err
	}
	encSecret, err := encryptWithVerify(secret, wsKey)
	if err != nil {
		return domainvault.Credential{}, err
	}

	cred := domainvault.Credential{
		ID:            uuid.NewString(),
		WorkspaceID:   workspaceID,
		ProviderName:  providerName,
		KeyCiphertext: encKey.Ciphertext,
		KeyIV:         encKey.IV,
		KeyAuthTag:    encKey.AuthTag,
		SecretPacked:  packSecret(encSecret),
		CreatedBy:     createdBy,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Insert(ctx, cred); err != nil {
		return domainvault.Credential{}, apierr.Internal(fmt.Errorf("insert credential: %w", err))
	}

	s.audit.record(AuditEntry{
		Time:         s.clock(),
		Event:        EventCredentialCreated,
		WorkspaceID:  workspaceID,
		CredentialID: cred.ID,
		ProviderName: providerName,
		Actor:        createdBy,
	})
	s.log.WithFields(map[string]interface{}{
		"workspace_id":  workspaceID,
		"credential_id": cred.ID,
		"provider_name": providerName,
	}).Info("credential stored")

	return cred, nil
}

// List implements spec 4.3's list: decrypts the key only and returns the
// masked form, never exposing ciphertext, IV, or authTag.
func (s *Service) List(ctx context.Context, mk MasterKey, workspaceID string) ([]domainvault.MaskedCredential, error) {
	creds, err := s.store.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list credentials: %w", err))
	}
	wsKey, err := deriveWorkspaceKey(mk, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]domainvault.MaskedCredential, 0, len(creds))
	for _, c := range creds {
		key, err := decrypt(encrypted{Ciphertext: c.KeyCiphertext, IV: c.KeyIV, AuthTag: c.KeyAuthTag}, wsKey)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("decrypt key for credential %s: %w", c.ID, err))
		}
		out = append(out, domainvault.MaskedCredential{
			ID:           c.ID,
			WorkspaceID:  c.WorkspaceID,
			ProviderName: c.ProviderName,
			MaskedKey:    Mask(key),
			CreatedBy:    c.CreatedBy,
			CreatedAt:    c.CreatedAt,
			RotatedAt:    c.RotatedAt,
			LastUsedAt:   c.LastUsedAt,
		})
	}
	return out, nil
}

// DecryptCredential implements spec 4.3's decryptCredential: internal-only,
// updates lastUsedAt, and emits a credential_decrypted audit event. This is
// the path the enrichment activity calls before invoking a provider adapter.
func (s *Service) DecryptCredential(ctx context.Context, mk MasterKey, credentialID string) (domainvault.Decrypted, error) {
	cred, ok, err := s.store.Get(ctx, credentialID)
	if err != nil {
		return domainvault.Decrypted{}, apierr.Internal(fmt.Errorf("get credential: %w", err))
	}
	if !ok {
		return domainvault.Decrypted{}, apierr.NotFound("credential %s not found", credentialID)
	}

	wsKey, err := deriveWorkspaceKey(mk, cred.WorkspaceID)
	if err != nil {
		return domainvault.Decrypted{}, err
	}

	key, err := decrypt(encrypted{Ciphertext: cred.KeyCiphertext, IV: cred.KeyIV, AuthTag: cred.KeyAuthTag}, wsKey)
	if err != nil {
		return domainvault.Decrypted{}, apierr.Internal(fmt.Errorf("decrypt key: %w", err))
	}
	secretEnc, err := unpackSecret(cred.SecretPacked)
	if err != nil {
		return domainvault.Decrypted{}, err
	}
	secret, err := decrypt(secretEnc, wsKey)
	if err != nil {
		return domainvault.Decrypted{}, apierr.Internal(fmt.Errorf("decrypt secret: %w", err))
	}

	if err := s.store.UpdateLastUsedAt(ctx, credentialID); err != nil {
		s.log.WithField("credential_id", credentialID).Warnf("failed to update lastUsedAt: %v", err)
	}
	s.audit.record(AuditEntry{
		Time:         s.clock(),
		Event:        EventCredentialDecrypted,
		WorkspaceID:  cred.WorkspaceID,
		CredentialID: cred.ID,
		ProviderName: cred.ProviderName,
	})

	return domainvault.Decrypted{Key: key, Secret: secret}, nil
}

// GetForProvider resolves the credential the enrichment activity needs for
// provider's required credential type in a workspace. Credentials are
// stored keyed by providerName (spec 4.3's store signature); this module
// resolves "credential for provider.requiredCredentialType" by matching the
// provider's own slug against the stored providerName, since a workspace
// holds at most one credential per concrete provider.
func (s *Service) GetForProvider(ctx context.Context, workspaceID, providerSlug string) (domainvault.Credential, bool, error) {
	cred, ok, err := s.store.GetByWorkspaceAndProvider(ctx, workspaceID, providerSlug)
	if err != nil {
		return domainvault.Credential{}, false, apierr.Internal(fmt.Errorf("lookup credential: %w", err))
	}
	return cred, ok, nil
}

// Delete implements spec 4.3's deleteCredential: 404 if absent, emits
// credential_deleted.
func (s *Service) Delete(ctx context.Context, credentialID string) error {
	cred, ok, err := s.store.Get(ctx, credentialID)
	if err != nil {
		return apierr.Internal(fmt.Errorf("get credential: %w", err))
	}
	if !ok {
		return apierr.NotFound("credential %s not found", credentialID)
	}
	if err := s.store.Delete(ctx, credentialID); err != nil {
		return apierr.Internal(fmt.Errorf("delete credential: %w", err))
	}
	s.audit.record(AuditEntry{
		Time:         s.clock(),
		Event:        EventCredentialDeleted,
		WorkspaceID:  cred.WorkspaceID,
		CredentialID: cred.ID,
		ProviderName: cred.ProviderName,
	})
	return nil
}

// RotateCredential implements the supplemented rotation feature (SPEC_FULL
// C.4): re-encrypts under the same workspace key and bumps rotatedAt.
func (s *Service) RotateCredential(ctx context.Context, mk MasterKey, credentialID, newKey, newSecret string) (domainvault.Credential, error) {
	cred, ok, err := s.store.Get(ctx, credentialID)
	if err != nil {
		return domainvault.Credential{}, apierr.Internal(fmt.Errorf("get credential: %w", err))
	}
	if !ok {
		return domainvault.Credential{}, apierr.NotFound("credential %s not found", credentialID)
	}

	wsKey, err := deriveWorkspaceKey(mk, cred.WorkspaceID)
	if err != nil {
		return domainvault.Credential{}, err
	}
	encKey, err := encryptWithVerify(newKey, wsKey)
	if err != nil {
		return domainvault.Credential{}, err
	}
	encSecret, err := encryptWithVerify(newSecret, wsKey)
	if err != nil {
		return domainvault.Credential{}, err
	}

	now := s.clock()
	cred.KeyCiphertext = encKey.Ciphertext
	cred.KeyIV = encKey.IV
	cred.KeyAuthTag = encKey.AuthTag
	cred.SecretPacked = packSecret(encSecret)
	cred.RotatedAt = &now

	if err := s.store.UpdateRotated(ctx, cred); err != nil {
		return domainvault.Credential{}, apierr.Internal(fmt.Errorf("update rotated credential: %w", err))
	}
	s.audit.record(AuditEntry{
		Time:         now,
		Event:        EventCredentialRotated,
		WorkspaceID:  cred.WorkspaceID,
		CredentialID: cred.ID,
		ProviderName: cred.ProviderName,
	})
	return cred, nil
}
