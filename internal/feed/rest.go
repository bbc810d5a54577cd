// Package feed keeps live brokerage connections open and turns the
// broker's order events into journal fills.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Client talks to the brokerage REST API. Contract lookups are cached
// for the life of the client since contract metadata never changes.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	http         *http.Client

	mu        sync.Mutex
	contracts map[int64]Contract
}

func NewClient(baseURL, clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		http:         &http.Client{Timeout: 15 * time.Second},
		contracts:    map[int64]Contract{},
	}
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Account struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

type Contract struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// OAuthURL builds the login URL the user is sent to; state round-trips
// through the broker untouched.
func (c *Client) OAuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	return "https://trader.tradovate.com/oauth?" + q.Encode()
}

// ExchangeCode trades an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  c.redirectURI,
		"code":          code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/oauthtoken", bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out Token
	if err := c.do(req, &out); err != nil {
		return Token{}, err
	}
	return out, nil
}

// RenewToken exchanges a still-valid access token for a fresh one and
// reports which broker user it belongs to.
func (c *Client) RenewToken(ctx context.Context, accessToken string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/renewaccesstoken", nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	var out struct {
		AccessToken string `json:"accessToken"`
		UserID      int64  `json:"userId"`
	}
	if err := c.do(req, &out); err != nil {
		return "", 0, err
	}
	return out.AccessToken, out.UserID, nil
}

// AccountsList returns every brokerage account visible to the token.
func (c *Client) AccountsList(ctx context.Context, accessToken string) ([]Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/account/list", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	var out []Account
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContractItem resolves a contract id to its traded symbol.
func (c *Client) ContractItem(ctx context.Context, id int64, accessToken string) (Contract, error) {
	c.mu.Lock()
	if item, ok := c.contracts[id]; ok {
		c.mu.Unlock()
		return item, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contract/item?id="+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return Contract{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	var out Contract
	if err := c.do(req, &out); err != nil {
		return Contract{}, err
	}

	c.mu.Lock()
	c.contracts[id] = out
	c.mu.Unlock()
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("broker api %s: status %d", req.URL.Path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
