package clientauth

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-authgate/oauthd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBasicOnly(t *testing.T) {
	r := httptest.NewRequest("POST", "/token", nil)
	r.SetBasicAuth("client-1", "secret-1")

	creds, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ID)
	assert.Equal(t, "secret-1", creds.Secret)
	assert.True(t, creds.Basic)
}

func TestExtractBodyOnly(t *testing.T) {
	body := url.Values{"client_id": {"client-1"}, "client_secret": {"secret-1"}}
	r := httptest.NewRequest("POST", "/token", strings.NewReader(body.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	creds, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ID)
	assert.Equal(t, "secret-1", creds.Secret)
	assert.False(t, creds.Basic)
}

func TestExtractQueryOnly(t *testing.T) {
	r := httptest.NewRequest("POST", "/token?client_id=client-1&client_secret=secret-1", nil)

	creds, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ID)
}

func TestExtractBothChannelsIsAmbiguous(t *testing.T) {
	body := url.Values{"client_id": {"client-1"}, "client_secret": {"secret-1"}}
	r := httptest.NewRequest("POST", "/token", strings.NewReader(body.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Same, valid credentials on the header channel too. Still a failure.
	r.SetBasicAuth("client-1", "secret-1")

	_, err := Extract(r)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)
}

func TestExtractNoCredentials(t *testing.T) {
	r := httptest.NewRequest("POST", "/token", nil)
	_, err := Extract(r)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExtractResourceServerParams(t *testing.T) {
	body := url.Values{"id": {"rs-1"}, "secret": {"secret-1"}}
	r := httptest.NewRequest("POST", "/token/introspect", strings.NewReader(body.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	creds, err := ExtractResourceServer(r)
	require.NoError(t, err)
	assert.Equal(t, "rs-1", creds.ID)
}

func TestVerifyAgainstClient(t *testing.T) {
	client := &models.Client{ClientID: "client-1"}
	secret, err := client.GenerateSecret()
	require.NoError(t, err)

	assert.NoError(t, Verify(&Credentials{ID: "client-1", Secret: secret}, client))
	assert.ErrorIs(t,
		Verify(&Credentials{ID: "client-1", Secret: "wrong"}, client),
		ErrInvalidCredentials)
	assert.ErrorIs(t, Verify(&Credentials{ID: "client-1", Secret: secret}, nil),
		ErrInvalidCredentials)
}
