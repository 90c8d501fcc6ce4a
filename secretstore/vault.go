package secretstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

func init() {
	Register(Backend{
		Type:           "vault",
		Description:    "HashiCorp Vault KV v2",
		Factory:        newVault,
		RequiredFields: []string{"address"},
		OptionalFields: []string{"token", "mount", "namespace", "field"},
	})
}

const (
	defaultVaultMount = "secret"
	defaultVaultField = "value"
)

// vaultStore keeps each secret as one field of its own KV v2 entry.
type vaultStore struct {
	kv    *vault.KVv2
	field string
}

func newVault(cfg BackendConfig) (Store, error) {
	address, err := cfg.requireExtra("address")
	if err != nil {
		return nil, err
	}
	vcfg := vault.DefaultConfig()
	vcfg.Address = address
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("init vault client: %w", err)
	}

	token := os.Getenv("VAULT_TOKEN")
	if t := cfg.extraString("token"); t != "" {
		token = t
	}
	if token != "" {
		client.SetToken(token)
	}
	if ns := cfg.extraString("namespace"); ns != "" {
		client.SetNamespace(ns)
	}

	mount := defaultVaultMount
	if m := cfg.extraString("mount"); m != "" {
		mount = m
	}
	field := defaultVaultField
	if f := cfg.extraString("field"); f != "" {
		field = f
	}
	return &vaultStore{kv: client.KVv2(mount), field: field}, nil
}

func vaultPath(name string) string {
	return strings.TrimPrefix(name, "/")
}

func (s *vaultStore) Get(ctx context.Context, name string) (string, error) {
	path := vaultPath(name)
	secret, err := s.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", fmt.Errorf("vault %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("vault get %s: %w", path, err)
	}
	value, ok := secret.Data[s.field].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s missing %q field", path, s.field)
	}
	return value, nil
}

func (s *vaultStore) Put(ctx context.Context, name, value string) error {
	path := vaultPath(name)
	if _, err := s.kv.Put(ctx, path, map[string]any{s.field: value}); err != nil {
		return fmt.Errorf("vault put %s: %w", path, err)
	}
	return nil
}
