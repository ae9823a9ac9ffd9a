package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := NewViper()
	v.Set("session.signing_secret", "test-secret")
	v.Set("twitch.client_id", "client-1")
	v.Set("ledger.channel_id", "channel-1")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.SessionTTL != time.Duration(defaultSessionTTLMin)*time.Minute {
		t.Fatalf("unexpected session ttl: %v", cfg.SessionTTL)
	}
	if cfg.Twitch.ValidateURL != defaultTwitchValidateURL {
		t.Fatalf("unexpected validate url: %q", cfg.Twitch.ValidateURL)
	}
	if cfg.SuperVoteCost != 0 {
		t.Fatalf("expected super vote cost default 0, got %d", cfg.SuperVoteCost)
	}
}

func TestLoadRejectsMissingSigningSecret(t *testing.T) {
	v := NewViper()
	v.Set("twitch.client_id", "client-1")
	v.Set("ledger.channel_id", "channel-1")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsNegativeSuperVoteCost(t *testing.T) {
	v := NewViper()
	v.Set("session.signing_secret", "test-secret")
	v.Set("twitch.client_id", "client-1")
	v.Set("ledger.channel_id", "channel-1")
	v.Set("vote.super_vote_cost", -5)

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for negative super vote cost")
	}
}

func TestSplitOriginsTrimsAndDropsEmpty(t *testing.T) {
	origins := splitOrigins(" https://a.example , ,https://b.example")
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %d", len(origins))
	}
	if origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", origins)
	}
}
