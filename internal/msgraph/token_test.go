package msgraph

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCredentialsProvider_AcquiresToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenant-1/oauth2/v2.0/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3599}`)
	})

	provider := NewClientCredentialsProvider(Credentials{
		ClientID:     "app-id",
		ClientSecret: "s3cret",
		DirectoryID:  "tenant-1",
		AuthorityURL: srv.URL,
	})

	token, err := provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "graph-token", token)
}

func TestClientCredentialsProvider_Rejected(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret provided."}`)
	})

	provider := NewClientCredentialsProvider(Credentials{
		ClientID:     "app-id",
		ClientSecret: "wrong",
		DirectoryID:  "tenant-1",
		AuthorityURL: srv.URL,
	})

	_, err := provider.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAuthentication))
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))

	var appErr *errors.Error
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "invalid_client", appErr.Code)
}

func TestClientCredentialsProvider_ValidateThroughClient(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"unauthorized_client"}`)
	})

	provider := NewClientCredentialsProvider(Credentials{ClientID: "a", ClientSecret: "b", DirectoryID: "c", AuthorityURL: srv.URL})
	client := NewClient(provider, ClientConfig{})

	err := client.Validate(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrAuthentication))
}
