package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthURLCarriesState(t *testing.T) {
	client := NewClient("https://demo.example", "client-1", "secret", "https://app.example/callback")

	raw := client.OAuthURL(`{"id":"ref-1"}`)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://app.example/callback", q.Get("redirect_uri"))
	assert.Equal(t, `{"id":"ref-1"}`, q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/oauthtoken", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "authorization_code", body["grant_type"])
		assert.Equal(t, "code-9", body["code"])
		assert.Equal(t, "client-1", body["client_id"])
		json.NewEncoder(w).Encode(Token{AccessToken: "tok-9", TokenType: "bearer", ExpiresIn: 4800})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "client-1", "secret", "https://app.example/callback")
	token, err := client.ExchangeCode(context.Background(), "code-9")
	require.NoError(t, err)
	assert.Equal(t, "tok-9", token.AccessToken)
}

func TestManagerAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/oauthtoken":
			json.NewEncoder(w).Encode(Token{AccessToken: "tok-5"})
		case "/account/list":
			require.Equal(t, "Bearer tok-5", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode([]Account{
				{ID: 11, UserID: 42, Name: "DEMO001", Nickname: "Main"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "client-1", "secret", "https://app.example/callback")
	m := NewManager(client, "", nil, nil, nil, zerolog.Nop())

	token, userID, err := m.Authorize(context.Background(), "code-5", "DEMO001")
	require.NoError(t, err)
	assert.Equal(t, "tok-5", token)
	assert.Equal(t, int64(42), userID)

	// Nickname matches resolve the same way.
	token, userID, err = m.Authorize(context.Background(), "code-5", "Main")
	require.NoError(t, err)
	assert.Equal(t, "tok-5", token)
	assert.Equal(t, int64(42), userID)

	_, _, err = m.Authorize(context.Background(), "code-5", "OTHER")
	assert.Error(t, err)
}
