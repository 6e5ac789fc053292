package main

import (
	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/logging"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

// newGraphClient builds an authenticated Graph client from configuration
func newGraphClient(cfg *config.Config) *msgraph.Client {
	tokens := msgraph.NewClientCredentialsProvider(msgraph.Credentials{
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		DirectoryID:  cfg.Graph.DirectoryID,
		AuthorityURL: cfg.Graph.AuthorityURL,
	})
	return msgraph.NewClient(tokens, graphClientConfig(cfg))
}

// graphClientConfig leaves HTTPClient unset: requests carry no timeout and
// are bounded only by the command's context.
func graphClientConfig(cfg *config.Config) msgraph.ClientConfig {
	return msgraph.ClientConfig{
		BaseURL:     cfg.Graph.BaseURL,
		RateLimit:   cfg.Graph.RateLimit,
		MaxAttempts: cfg.Graph.MaxAttempts,
		RetryDelay:  cfg.Graph.RetryDelay,
		Logger:      logging.Component("msgraph"),
	}
}
