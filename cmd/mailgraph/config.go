package main

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/mailgraph/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect mailgraph configuration and stored secrets",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret",
	Short: "Store the Graph client secret in the OS keychain",
	Long: `Prompt for the application's client secret and store it in the OS
keychain, scoped to graph.client_id. The secret is read without echo; piped
input is accepted for scripted setups.

Examples:
  mailgraph config set-secret
  echo "$SECRET" | mailgraph config set-secret`,
	RunE: runConfigSetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret",
	Short: "Remove the Graph client secret from the OS keychain",
	RunE:  runConfigDeleteSecret,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	masked := maskConfig(cfg)
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(out))

	source := config.NewKeyringManager().ClientSecretSource(cfg)
	security := "⚠️  Plaintext"
	if source.Secure {
		security = "✅ Secure"
	}
	fmt.Printf("\n# client secret source: %s (%s)\n", source.Source, security)
	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain not available; set AZURE_CLIENT_SECRET instead")
	}

	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Printf("Client secret for %s: ", displayClientID(cfg.Graph.ClientID))
	}
	secret, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}

	if err := km.SaveClientSecret(cfg.Graph.ClientID, secret); err != nil {
		return err
	}
	fmt.Println("✅ Client secret saved to OS keychain (secure)")
	return nil
}

func runConfigDeleteSecret(cmd *cobra.Command, args []string) error {
	if err := config.NewKeyringManager().DeleteClientSecret(cfg.Graph.ClientID); err != nil {
		return err
	}
	fmt.Println("✅ Client secret removed from OS keychain")
	return nil
}

// readSecret reads a secret from the terminal without echo, or a line from piped stdin
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func maskConfig(c *config.Config) config.Config {
	masked := *c
	if masked.Graph.ClientSecret != "" {
		masked.Graph.ClientSecret = config.MaskSecret(masked.Graph.ClientSecret)
	}
	if masked.Neo4j.Password != "" {
		masked.Neo4j.Password = config.MaskSecret(masked.Neo4j.Password)
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = config.MaskSecret(masked.Redis.Password)
	}
	masked.Storage.PostgresDSN = redactDSN(masked.Storage.PostgresDSN)
	return masked
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func displayClientID(id string) string {
	if id == "" {
		return "(no client id)"
	}
	return id
}
