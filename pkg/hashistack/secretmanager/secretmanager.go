package secretmanager

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

const mountPath = "secret"

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Enabled reports whether a vault address is configured in the environment.
func Enabled() bool {
	_, ok := os.LookupEnv("VAULT_ADDR")
	return ok
}

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	return client, nil
}

// Secrets is a flattened view of a KV v2 secret.
type Secrets map[string]any

func (s Secrets) Get(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// ReadKV reads the KV v2 secret stored at path under the "secret" mount.
func ReadKV(ctx context.Context, client *vault.Client, path string) (Secrets, error) {
	resp, err := client.Secrets.KvV2Read(ctx, path, vault.WithMountPath(mountPath))
	if err != nil {
		return nil, fmt.Errorf("read secret %q: %w", path, err)
	}
	return Secrets(resp.Data.Data), nil
}
