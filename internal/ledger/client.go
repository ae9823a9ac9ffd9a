package ledger

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
	errMissingBaseURL   = errors.New("ledger: base url required")
	errMissingChannelID = errors.New("ledger: channel id required")
	errMissingUsername  = errors.New("ledger: username required")
)

// ClientConfig bundles the remote points-ledger endpoint and credentials.
type ClientConfig struct {
	BaseURL    string
	ChannelID  string
	JWTToken   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the StreamElements-style loyalty points API. Balances are
// keyed by viewer display name. The ledger is remote and eventually
// consistent; it is never part of a local store transaction.
type Client struct {
	baseURL    string
	channelID  string
	jwtToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a ledger client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, errMissingChannelID
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		channelID:  cfg.ChannelID,
		jwtToken:   cfg.JWTToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type balanceResponse struct {
	Points int64 `json:"points"`
}

// Balance returns the viewer's current point balance. Accounts the ledger
// has never seen report zero rather than an error.
func (c *Client) Balance(ctx context.Context, username string) (int64, error) {
	if strings.TrimSpace(username) == "" {
		return 0, errMissingUsername
	}

	endpoint := fmt.Sprintf("%s/points/%s/%s", c.baseURL, url.PathEscape(c.channelID), url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ledger: balance request returned status %d", response.StatusCode)
	}

	var payload balanceResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.Points, nil
}

// Debit subtracts points from the viewer's balance. Callers invoke this only
// after their local transaction committed; a failure here is logged by the
// caller and never rolls the local state back.
func (c *Client) Debit(ctx context.Context, username string, amount int64) error {
	if strings.TrimSpace(username) == "" {
		return errMissingUsername
	}
	if amount <= 0 {
		return fmt.Errorf("ledger: debit amount must be positive, got %d", amount)
	}

	endpoint := fmt.Sprintf("%s/points/%s/%s/-%d", c.baseURL, url.PathEscape(c.channelID), url.PathEscape(username), amount)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwtToken)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger: debit request returned status %d", response.StatusCode)
	}
	return nil
}
