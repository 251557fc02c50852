package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var ErrOAuthDisabled = errors.New("google sign-in is not configured")

// ProviderIdentity is what the OAuth provider tells us about the user.
type ProviderIdentity struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	PictureURL    string
}

// OAuthProvider builds the consent URL and exchanges the returned
// authorization code for the caller's identity.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*ProviderIdentity, error)
}

type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret, callbackURL string) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL is where the frontend sends the user to start sign-in.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *GoogleOAuth) ExchangeCode(ctx context.Context, code string) (*ProviderIdentity, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch userinfo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, errors.New("userinfo missing subject or email")
	}
	return &ProviderIdentity{
		ProviderID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		PictureURL:    info.Picture,
	}, nil
}

// SplitName turns a display name into first and last name. The first word
// is the first name and the rest is the last name, with "Google" and "User"
// filling in for missing parts.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	first, last = "Google", "User"
	if len(parts) > 0 {
		first = parts[0]
	}
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// DisabledOAuth rejects every exchange. Used when no client id is configured.
type DisabledOAuth struct{}

// AuthCodeURL is empty when sign-in is not configured.
func (DisabledOAuth) AuthCodeURL(string) string { return "" }

func (DisabledOAuth) ExchangeCode(context.Context, string) (*ProviderIdentity, error) {
	return nil, ErrOAuthDisabled
}
