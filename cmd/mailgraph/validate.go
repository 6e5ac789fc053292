package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/ingestion"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check credentials and configuration without ingesting",
	Long: `Validate checks that the client id, secret and directory id are present,
acquires an access token, and optionally verifies Directory.Read.All.

Examples:
  mailgraph validate
  mailgraph validate --config ./config.yaml --verbose`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	result := cfg.Validate(config.ValidationContextValidate)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if result.HasErrors() {
		return result
	}

	client := newGraphClient(cfg)
	if err := ingestion.ValidateInvocation(ctx, cfg, client); err != nil {
		return err
	}
	fmt.Println("✅ Credentials valid")

	org, err := client.FetchOrganization(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not read organization")
		return nil
	}
	if org != nil {
		domains := make([]string, 0, len(org.VerifiedDomains))
		for _, d := range org.VerifiedDomains {
			domains = append(domains, d.Name)
		}
		fmt.Printf("   Organization: %s (%s)\n", org.DisplayName, org.ID)
		if len(domains) > 0 {
			fmt.Printf("   Domains: %s\n", strings.Join(domains, ", "))
		}
	}

	if err := cfg.RequireExchange(); err != nil {
		fmt.Printf("⚠️  Ingestion not configured: %v\n", err)
	}
	return nil
}
