package msgraph

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

// Application permissions checked before use
const (
	DirectoryReadAll = "Directory.Read.All"
	MailRead         = "Mail.Read"
)

// CodeMissingPermission marks an AuthorizationError raised locally because
// the token lacks a role.
const CodeMissingPermission = "MISSING_API_PERMISSION"

// RolesFromAccessToken decodes the roles claim of a JWT access token. Any
// token that cannot be decoded has no roles.
func RolesFromAccessToken(token string) []string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, ok := decodeSegment(parts[1])
	if !ok || !gjson.ValidBytes(payload) {
		return nil
	}

	var roles []string
	for _, r := range gjson.GetBytes(payload, "roles").Array() {
		if r.Type == gjson.String {
			roles = append(roles, r.String())
		}
	}
	return roles
}

func decodeSegment(seg string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(seg); err == nil {
			return b, true
		}
	}
	return nil, false
}

// EnforcePermission fails if the current access token does not carry scope.
// The error is a ValidationError wrapping an AuthorizationError for endpoint.
func (c *Client) EnforcePermission(ctx context.Context, endpoint, scope string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	for _, role := range RolesFromAccessToken(token) {
		if role == scope {
			return nil
		}
	}

	c.logger.Warn("access token is missing a required permission", "endpoint", endpoint, "permission", scope)

	authErr := errors.AuthorizationError(endpoint, http.StatusForbidden, CodeMissingPermission,
		fmt.Sprintf("permission %s is required", scope))
	return errors.WrapValidation(authErr, fmt.Sprintf("application is missing permission %s", scope))
}
