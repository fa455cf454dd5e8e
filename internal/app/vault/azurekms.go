package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// MasterKeyProvider resolves the root MasterKey used to derive every
// workspace key, decoupling cmd/appserver's startup wiring from exactly
// where that 32-byte secret lives.
type MasterKeyProvider interface {
	MasterKey(ctx context.Context) (MasterKey, error)
}

// StaticMasterKeyProvider returns a fixed key, for the spec's default
// "32-byte hex-encoded env var" configuration path.
type StaticMasterKeyProvider struct {
	key MasterKey
}

func NewStaticMasterKeyProvider(hexKey string) (*StaticMasterKeyProvider, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key hex: %w", err)
	}
	mk, err := NewMasterKey(raw)
	if err != nil {
		return nil, err
	}
	return &StaticMasterKeyProvider{key: mk}, nil
}

func (p *StaticMasterKeyProvider) MasterKey(ctx context.Context) (MasterKey, error) {
	return p.key, nil
}

// AzureKeyVaultMasterKeyProvider fetches the master key's hex encoding from
// an Azure Key Vault secret instead of the environment, for operators who
// keep their root secret in a managed vault rather than process env. It
// authenticates with azidentity.DefaultAzureCredential (environment,
// managed identity, or Azure CLI login, tried in that order) and calls the
// Key Vault data-plane REST API directly, since this module does not
// otherwise depend on the generated azsecrets client.
type AzureKeyVaultMasterKeyProvider struct {
	vaultBaseURL string
	secretName   string
	cred         *azidentity.DefaultAzureCredential
	httpClient   *http.Client
}

func NewAzureKeyVaultMasterKeyProvider(vaultBaseURL, secretName string) (*AzureKeyVaultMasterKeyProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	return &AzureKeyVaultMasterKeyProvider{
		vaultBaseURL: vaultBaseURL,
		secretName:   secretName,
		cred:         cred,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type keyVaultSecretResponse struct {
	Value string `json:"value"`
}

func (p *AzureKeyVaultMasterKeyProvider) MasterKey(ctx context.Context) (MasterKey, error) {
	token, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{"https://vault.azure.net/.default"},
	})
	if err != nil {
		return MasterKey{}, fmt.Errorf("acquire azure token: %w", err)
	}

	url := fmt.Sprintf("%s/secrets/%s?api-version=7.4", p.vaultBaseURL, p.secretName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MasterKey{}, fmt.Errorf("build key vault request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return MasterKey{}, fmt.Errorf("call key vault: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MasterKey{}, fmt.Errorf("key vault returned status %d", resp.StatusCode)
	}

	var secret keyVaultSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return MasterKey{}, fmt.Errorf("decode key vault response: %w", err)
	}

	raw, err := hex.DecodeString(secret.Value)
	if err != nil {
		return MasterKey{}, fmt.Errorf("decode master key hex from key vault: %w", err)
	}
	return NewMasterKey(raw)
}
