package msgraph

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

const (
	// DefaultAuthorityURL is the Azure AD v2 token authority
	DefaultAuthorityURL = "https://login.microsoftonline.com"

	// DefaultScope requests every application permission granted to the app
	DefaultScope = "https://graph.microsoft.com/.default"
)

// TokenProvider acquires a bearer token. Every call performs a fresh
// acquisition; caching belongs to the Client.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Credentials identify the application registration in a directory
type Credentials struct {
	ClientID     string
	ClientSecret string
	DirectoryID  string
	AuthorityURL string // Defaults to DefaultAuthorityURL
	Scopes       []string
}

// ClientCredentialsProvider implements TokenProvider with the OAuth2 client
// credentials grant against the directory's v2 token endpoint.
type ClientCredentialsProvider struct {
	config clientcredentials.Config
}

// NewClientCredentialsProvider creates a provider for the given credentials
func NewClientCredentialsProvider(creds Credentials) *ClientCredentialsProvider {
	authority := strings.TrimRight(creds.AuthorityURL, "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	return &ClientCredentialsProvider{
		config: clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, url.PathEscape(creds.DirectoryID)),
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// AccessToken requests a new token from the identity provider
func (p *ClientCredentialsProvider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.config.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if stderrors.As(err, &re) {
			authErr := errors.AuthenticationError(err, "identity provider rejected client credentials")
			authErr.Endpoint = p.config.TokenURL
			authErr.Code = re.ErrorCode
			if re.Response != nil {
				authErr.Status = re.Response.StatusCode
			}
			return "", authErr
		}
		return "", errors.TransportError(err, p.config.TokenURL)
	}
	if tok.AccessToken == "" {
		return "", errors.AuthenticationError(fmt.Errorf("empty access_token in response"), "identity provider returned no token")
	}
	return tok.AccessToken, nil
}
