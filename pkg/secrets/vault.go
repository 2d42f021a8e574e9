package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"whatsmoney/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrVaultDisabled  = errors.New("vault integration is disabled")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	Timeout     time.Duration
	SecretsPath string
	Enabled     bool
}

// VaultManager fetches secrets from HashiCorp Vault with a small in-memory
// cache. When Vault is disabled, lookups fall back to environment variables.
type VaultManager struct {
	client   *vault.Client
	config   VaultConfig
	cache    map[string]string
	mu       sync.RWMutex
	log      *logger.Logger
	cacheTTL time.Duration
	cachedAt map[string]time.Time
}

// NewVaultManager creates a new Vault manager from environment configuration
func NewVaultManager(log *logger.Logger) (*VaultManager, error) {
	cfg := VaultConfig{
		Address:     os.Getenv("VAULT_ADDR"),
		Token:       os.Getenv("VAULT_TOKEN"),
		Namespace:   os.Getenv("VAULT_NAMESPACE"),
		SecretsPath: os.Getenv("VAULT_SECRETS_PATH"),
		Enabled:     true,
		Timeout:     10 * time.Second,
	}
	if enabled := os.Getenv("VAULT_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.Enabled = v
		}
	}
	if cfg.SecretsPath == "" {
		cfg.SecretsPath = "secret/data/whatsmoney"
	}

	m := &VaultManager{
		config:   cfg,
		cache:    make(map[string]string),
		cachedAt: make(map[string]time.Time),
		log:      log,
		cacheTTL: 5 * time.Minute,
	}

	if !cfg.Enabled || cfg.Address == "" {
		m.config.Enabled = false
		return m, nil
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	vaultCfg.Timeout = cfg.Timeout

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	m.client = client

	return m, nil
}

// GetSecret returns a secret by key, preferring Vault and falling back to
// the environment variable of the same name.
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if !m.config.Enabled {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
		return "", ErrSecretNotFound
	}

	m.mu.RLock()
	if v, ok := m.cache[key]; ok && time.Since(m.cachedAt[key]) < m.cacheTTL {
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	secret, err := m.client.Logical().ReadWithContext(ctx, m.config.SecretsPath)
	if err != nil {
		return "", fmt.Errorf("failed to read vault path %s: %w", m.config.SecretsPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	// KV v2 nests the payload under "data"
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}

	m.mu.Lock()
	m.cache[key] = value
	m.cachedAt[key] = time.Now()
	m.mu.Unlock()

	return value, nil
}

// JWTSecret resolves the token-signing secret, preferring Vault
func (m *VaultManager) JWTSecret(ctx context.Context) (string, error) {
	secret, err := m.GetSecret(ctx, "JWT_SECRET")
	if err != nil {
		return "", err
	}
	return secret, nil
}
