package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "mailgraph"

	// KeyringClientSecretItem is the item used when no client id is known
	KeyringClientSecretItem = "graph-client-secret"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// itemFor scopes the secret to the application registration so several
// apps can share one keychain.
func itemFor(clientID string) string {
	if clientID == "" {
		return KeyringClientSecretItem
	}
	return KeyringClientSecretItem + ":" + clientID
}

// SaveClientSecret stores the Graph client secret in the OS keychain
func (km *KeyringManager) SaveClientSecret(clientID, secret string) error {
	if secret == "" {
		return fmt.Errorf("client secret cannot be empty")
	}

	if err := keyring.Set(KeyringService, itemFor(clientID), secret); err != nil {
		km.logger.Error("failed to save client secret to keychain", "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("client secret saved to keychain", "service", KeyringService, "client_id", clientID)
	return nil
}

// GetClientSecret retrieves the client secret; a missing item yields ""
func (km *KeyringManager) GetClientSecret(clientID string) (string, error) {
	secret, err := keyring.Get(KeyringService, itemFor(clientID))
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get client secret from keychain", "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("client secret retrieved from keychain")
	return secret, nil
}

// DeleteClientSecret removes the client secret from the OS keychain
func (km *KeyringManager) DeleteClientSecret(clientID string) error {
	err := keyring.Delete(KeyringService, itemFor(clientID))
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete client secret from keychain", "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("client secret deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems (CI/CD) where keychain isn't available.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == nil || err == keyring.ErrNotFound {
		return true
	}
	km.logger.Debug("keychain not available", "error", err)
	return false
}

// SecretSource describes where the client secret came from
type SecretSource struct {
	Source string // "env", "keychain", "config", "none"
	Secure bool
}

// ClientSecretSource determines where the client secret is coming from
func (km *KeyringManager) ClientSecretSource(cfg *Config) SecretSource {
	if os.Getenv("AZURE_CLIENT_SECRET") != "" {
		return SecretSource{Source: "env", Secure: true}
	}
	if secret, _ := km.GetClientSecret(cfg.Graph.ClientID); secret != "" && secret == cfg.Graph.ClientSecret {
		return SecretSource{Source: "keychain", Secure: true}
	}
	if cfg.Graph.ClientSecret != "" {
		return SecretSource{Source: "config", Secure: false}
	}
	return SecretSource{Source: "none"}
}

// MaskSecret masks a secret for display, keeping the first and last 4 characters
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
