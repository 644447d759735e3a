// Package oauth talks to external identity providers. Only Google is wired.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var ErrNotConfigured = errors.New("oauth provider is not configured")

// Profile is what the identity provider vouches for.
type Profile struct {
	ProviderID  string
	Email       string
	DisplayName string
	GivenName   string
	AvatarURL   string
}

// Provider runs the authorization-code flow against one identity provider.
type Provider interface {
	// AuthURL is the consent screen the browser is redirected to.
	AuthURL(state string) string
	// Profile exchanges the callback code and fetches the user's profile.
	Profile(ctx context.Context, code string) (*Profile, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

type GoogleProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(c GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.CallbackURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleProvider) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	Picture   string `json:"picture"`
}

func (g *GoogleProvider) Profile(ctx context.Context, code string) (*Profile, error) {
	if g.cfg.ClientID == "" {
		return nil, ErrNotConfigured
	}

	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google: create profile request: %w", err)
	}

	resp, err := g.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google: profile fetch failed (%d): %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google: decode profile: %w", err)
	}

	return &Profile{
		ProviderID:  info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		GivenName:   info.GivenName,
		AvatarURL:   info.Picture,
	}, nil
}
