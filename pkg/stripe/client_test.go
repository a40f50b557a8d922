package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/config"
)

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{"": testEnv, " TEST ": testEnv, "live": liveEnv}
	for raw, want := range cases {
		got, err := normalizeEnv(raw)
		if err != nil {
			t.Fatalf("normalizeEnv(%q) unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := normalizeEnv("staging"); !errors.Is(err, errInvalidStripeEnv) {
		t.Fatalf("expected invalid env error, got %v", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	cases := []struct {
		env     string
		key     string
		wantErr bool
	}{
		{env: testEnv, key: "sk_test_123"},
		{env: testEnv, key: "rk_test_123"},
		{env: testEnv, key: "sk_live_123", wantErr: true},
		{env: liveEnv, key: "sk_live_123"},
		{env: liveEnv, key: "sk_test_123", wantErr: true},
		{env: liveEnv, key: "sk_live", wantErr: true},
		{env: "staging", key: "sk_test_123", wantErr: true},
	}
	for _, tc := range cases {
		err := validateAPIKey(tc.env, tc.key)
		if tc.wantErr != (err != nil) {
			t.Fatalf("validateAPIKey(%q, %q) err = %v, wantErr %v", tc.env, tc.key, err, tc.wantErr)
		}
	}
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	if _, err := NewClient(ctx, config.StripeConfig{WebhookSecret: "whsec"}, nil); !errors.Is(err, errAPIKeyRequired) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil); !errors.Is(err, errSecretRequired) {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: " whsec_1 ", Currency: "EUR"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != testEnv {
		t.Fatalf("expected test env, got %q", client.Environment())
	}
	if client.SigningSecret() != "whsec_1" {
		t.Fatalf("expected trimmed secret, got %q", client.SigningSecret())
	}
	if client.Currency() != "eur" {
		t.Fatalf("expected lowercased currency, got %q", client.Currency())
	}
}

func TestNilClientDefaults(t *testing.T) {
	var client *Client
	if client.Currency() != "usd" {
		t.Fatalf("expected usd default, got %q", client.Currency())
	}
	if client.SigningSecret() != "" {
		t.Fatalf("expected empty secret")
	}
}
