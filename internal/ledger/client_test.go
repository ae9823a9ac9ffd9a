package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBalanceReturnsPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/points/channel-1/viewer_one" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"channel":"channel-1","username":"viewer_one","points":125}`)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, ChannelID: "channel-1"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	balance, err := client.Balance(context.Background(), "viewer_one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 125 {
		t.Fatalf("expected balance 125, got %d", balance)
	}
}

func TestBalanceTreatsUnknownViewerAsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, ChannelID: "channel-1"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	balance, err := client.Balance(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestDebitSendsNegativeAmountWithBearerToken(t *testing.T) {
	var seenPath, seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		seenPath = r.URL.Path
		seenAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"newAmount":45}`)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, ChannelID: "channel-1", JWTToken: "ledger-jwt"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	if err := client.Debit(context.Background(), "viewer_one", 80); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenPath != "/points/channel-1/viewer_one/-80" {
		t.Fatalf("unexpected debit path %q", seenPath)
	}
	if seenAuth != "Bearer ledger-jwt" {
		t.Fatalf("unexpected authorization header %q", seenAuth)
	}
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "https://example.com", ChannelID: "channel-1"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	if err := client.Debit(context.Background(), "viewer_one", 0); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if err := client.Debit(context.Background(), "viewer_one", -5); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestDebitPropagatesRemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, ChannelID: "channel-1"})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	if err := client.Debit(context.Background(), "viewer_one", 10); err == nil {
		t.Fatalf("expected error for remote failure")
	}
}
