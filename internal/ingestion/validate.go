package ingestion

import (
	"context"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

// Validator proves that credentials work before a run starts
type Validator interface {
	Validate(ctx context.Context) error
	ValidateDirectoryPermissions(ctx context.Context) error
}

// ValidateInvocation checks credential completeness without touching the
// network, then acquires a token, then optionally checks directory access.
func ValidateInvocation(ctx context.Context, cfg *config.Config, v Validator) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	if err := v.Validate(ctx); err != nil {
		return err
	}
	if cfg.Graph.CheckDirectoryPermissions {
		if err := v.ValidateDirectoryPermissions(ctx); err != nil {
			return err
		}
	}
	return nil
}

// QueryFromConfig builds the mailbox query of an ingestion run
func QueryFromConfig(cfg *config.Config) (msgraph.MessageQuery, error) {
	if err := cfg.RequireExchange(); err != nil {
		return msgraph.MessageQuery{}, err
	}

	start, end, err := cfg.Exchange.Window()
	if err != nil {
		return msgraph.MessageQuery{}, err
	}

	return msgraph.MessageQuery{
		UserID:    cfg.Exchange.UserID,
		StartDate: start,
		EndDate:   end,
		PageSize:  cfg.Exchange.PageSize,
	}, nil
}
