package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

var (
	errMissingValidateURL  = errors.New("auth: twitch validate url required")
	errMissingClientID     = errors.New("auth: twitch client id required")
	errMissingAccessToken  = errors.New("auth: access token required")
	errMissingAuthCode     = errors.New("auth: authorization code required")
	ErrInvalidTwitchConfig = errors.New("auth: invalid twitch client config")
)

// TwitchIdentity holds the identity the provider vouches for.
type TwitchIdentity struct {
	UserID   string
	Login    string
	ClientID string
}

// TwitchProfile is the public profile fetched after code exchange.
type TwitchProfile struct {
	UserID          string
	DisplayName     string
	ProfileImageURL string
}

// TwitchClientConfig configures the remote identity-provider client.
type TwitchClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	ValidateURL  string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// TwitchClient validates bearer credentials against the Twitch OAuth
// endpoint and performs the authorization-code exchange.
type TwitchClient struct {
	config     TwitchClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTwitchClient constructs a client with validated configuration.
func NewTwitchClient(cfg TwitchClientConfig) (*TwitchClient, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTwitchConfig, errMissingClientID)
	}
	if strings.TrimSpace(cfg.ValidateURL) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTwitchConfig, errMissingValidateURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwitchClient{config: cfg, httpClient: httpClient, logger: logger}, nil
}

type validateResponse struct {
	ClientID string `json:"client_id"`
	Login    string `json:"login"`
	UserID   string `json:"user_id"`
}

// Validate confirms the access token with the identity provider and returns
// the identity it belongs to. Expired or revoked tokens yield an error.
func (c *TwitchClient) Validate(ctx context.Context, accessToken string) (TwitchIdentity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return TwitchIdentity{}, errMissingAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ValidateURL, nil)
	if err != nil {
		return TwitchIdentity{}, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return TwitchIdentity{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return TwitchIdentity{}, fmt.Errorf("auth: token validation returned status %d", response.StatusCode)
	}

	var payload validateResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return TwitchIdentity{}, err
	}
	if payload.UserID == "" {
		return TwitchIdentity{}, errors.New("auth: validate response missing user id")
	}
	return TwitchIdentity{
		UserID:   payload.UserID,
		Login:    payload.Login,
		ClientID: payload.ClientID,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Exchange swaps an authorization code for an access token.
func (c *TwitchClient) Exchange(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", errMissingAuthCode
	}

	form := url.Values{}
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.config.RedirectURI)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: code exchange returned status %d", response.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("auth: token response missing access token")
	}
	return payload.AccessToken, nil
}

type userInfoResponse struct {
	Data []struct {
		ID              string `json:"id"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// FetchProfile loads the authenticated user's public profile.
func (c *TwitchClient) FetchProfile(ctx context.Context, accessToken string) (TwitchProfile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return TwitchProfile{}, errMissingAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserInfoURL, nil)
	if err != nil {
		return TwitchProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Client-ID", c.config.ClientID)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return TwitchProfile{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return TwitchProfile{}, fmt.Errorf("auth: userinfo request returned status %d", response.StatusCode)
	}

	var payload userInfoResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return TwitchProfile{}, err
	}
	if len(payload.Data) == 0 {
		return TwitchProfile{}, errors.New("auth: userinfo response empty")
	}
	return TwitchProfile{
		UserID:          payload.Data[0].ID,
		DisplayName:     payload.Data[0].DisplayName,
		ProfileImageURL: payload.Data[0].ProfileImageURL,
	}, nil
}

// AuthorizeURL builds the provider consent URL the front-end redirects to.
func (c *TwitchClient) AuthorizeURL() string {
	query := url.Values{}
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("response_type", "code")
	query.Set("scope", "user:read:email")
	return "https://id.twitch.tv/oauth2/authorize?" + query.Encode()
}
