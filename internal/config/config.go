package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "NEXTUP"
	defaultHTTPAddress   = "0.0.0.0:8000"
	defaultDatabasePath  = "nextup.db"
	defaultMediaDir      = "images"
	defaultLogLevel      = "info"
	defaultSessionTTLMin = 240
	defaultSuperVoteCost = 0

	defaultTwitchValidateURL = "https://id.twitch.tv/oauth2/validate"
	defaultTwitchTokenURL    = "https://id.twitch.tv/oauth2/token"
	defaultTwitchUserInfoURL = "https://api.twitch.tv/helix/users"
	defaultLedgerBaseURL     = "https://api.streamelements.com/kappa/v2"
	defaultSteamStoreAPIURL  = "https://store.steampowered.com/api/appdetails"
)

// TwitchConfig captures the identity-provider endpoints and credentials.
type TwitchConfig struct {
	ClientID      string
	ClientSecret  string
	BroadcasterID string
	RedirectURI   string
	ValidateURL   string
	TokenURL      string
	UserInfoURL   string
}

// LedgerConfig captures the loyalty-points ledger endpoint and credentials.
type LedgerConfig struct {
	BaseURL   string
	ChannelID string
	JWTToken  string
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	MediaDir       string
	LogLevel       string
	SigningSecret  string
	SessionTTL     time.Duration
	SuperVoteCost  int64
	Twitch         TwitchConfig
	Ledger         LedgerConfig
	SteamAPIURL    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", "")
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("media.dir", defaultMediaDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMin)
	configViper.SetDefault("vote.super_vote_cost", defaultSuperVoteCost)
	configViper.SetDefault("twitch.validate_url", defaultTwitchValidateURL)
	configViper.SetDefault("twitch.token_url", defaultTwitchTokenURL)
	configViper.SetDefault("twitch.userinfo_url", defaultTwitchUserInfoURL)
	configViper.SetDefault("ledger.base_url", defaultLedgerBaseURL)
	configViper.SetDefault("steam.api_url", defaultSteamStoreAPIURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitOrigins(configViper.GetString("http.allowed_origins")),
		DatabasePath:   configViper.GetString("database.path"),
		MediaDir:       configViper.GetString("media.dir"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("session.signing_secret"),
		SessionTTL:     time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SuperVoteCost:  configViper.GetInt64("vote.super_vote_cost"),
		Twitch: TwitchConfig{
			ClientID:      configViper.GetString("twitch.client_id"),
			ClientSecret:  configViper.GetString("twitch.client_secret"),
			BroadcasterID: configViper.GetString("twitch.broadcaster_id"),
			RedirectURI:   configViper.GetString("twitch.redirect_uri"),
			ValidateURL:   configViper.GetString("twitch.validate_url"),
			TokenURL:      configViper.GetString("twitch.token_url"),
			UserInfoURL:   configViper.GetString("twitch.userinfo_url"),
		},
		Ledger: LedgerConfig{
			BaseURL:   configViper.GetString("ledger.base_url"),
			ChannelID: configViper.GetString("ledger.channel_id"),
			JWTToken:  configViper.GetString("ledger.jwt_token"),
		},
		SteamAPIURL: configViper.GetString("steam.api_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Twitch.ClientID) == "" {
		return fmt.Errorf("twitch.client_id is required")
	}
	if strings.TrimSpace(c.Ledger.ChannelID) == "" {
		return fmt.Errorf("ledger.channel_id is required")
	}
	if c.SuperVoteCost < 0 {
		return fmt.Errorf("vote.super_vote_cost must not be negative")
	}
	return nil
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
