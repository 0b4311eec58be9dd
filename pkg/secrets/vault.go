package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/config"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultSource reads secrets from a HashiCorp Vault KV v2 mount, with an
// env-var fallback so local development works without a vault.
type VaultSource struct {
	client *vault.Client
	path   string
	mu     sync.RWMutex
	cache  map[string]string
	log    *logger.Logger
}

// NewVaultSource creates a vault-backed secret source from the runtime
// configuration.
func NewVaultSource(cfg *config.Config, log *logger.Logger) (*VaultSource, error) {
	if cfg.Vault.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Vault.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Vault.Address
	vaultConfig.Timeout = 10 * time.Second
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Vault.Token)

	return &VaultSource{
		client: client,
		path:   cfg.Vault.Path,
		cache:  make(map[string]string),
		log:    log.WithComponent("secrets"),
	}, nil
}

// GetSecret retrieves a secret from Vault, falling back to the environment
// when the key is absent from the mount.
func (s *VaultSource) GetSecret(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		s.log.Warn("vault read failed, falling back to environment", "key", key, "error", err.Error())
		return EnvSource{}.GetSecret(ctx, key)
	}
	if secret == nil || secret.Data == nil {
		return EnvSource{}.GetSecret(ctx, key)
	}

	// KV v2 nests the payload under "data"
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]any); ok {
		data = nested
	}

	value, ok := data[key].(string)
	if !ok || value == "" {
		return EnvSource{}.GetSecret(ctx, key)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	return value, nil
}
