package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/infra"
	"vidluxe/internal/middleware"
)

func fileConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		StoreBackend:       infra.BackendFile,
		DataDir:            t.TempDir(),
		JWTSecret:          "test-secret",
		FreeMonthlyCredits: 3,
	}
}

func TestPurchaseThenBalancePersists(t *testing.T) {
	cfg := fileConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	for i := 0; i < 2; i++ {
		out.Reset()
		if err := run(ctx, cfg, zerolog.Nop(), []string{"purchase", "-user", "alice", "-amount", "20", "-ref", "pay-1"}, &out); err != nil {
			t.Fatalf("purchase: %v", err)
		}
		if !strings.Contains(out.String(), "balance=23") {
			t.Fatalf("unexpected purchase output: %q", out.String())
		}
	}

	out.Reset()
	if err := run(ctx, cfg, zerolog.Nop(), []string{"balance", "-user", "alice"}, &out); err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !strings.Contains(out.String(), "paid=20") {
		t.Fatalf("repeated reference should grant once, got %q", out.String())
	}
}

func TestPurchaseRejectsNonPositiveAmount(t *testing.T) {
	cfg := fileConfig(t)
	var out bytes.Buffer
	if err := run(context.Background(), cfg, zerolog.Nop(), []string{"purchase", "-user", "alice", "-amount", "0"}, &out); err == nil {
		t.Fatalf("expected rejection for zero amount")
	}
}

func TestTokenIsVerifiable(t *testing.T) {
	cfg := fileConfig(t)
	var out bytes.Buffer
	if err := run(context.Background(), cfg, zerolog.Nop(), []string{"token", "-user", "alice", "-ttl", time.Hour.String()}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := middleware.ParseToken(cfg.JWTSecret, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("subject mismatch: %q", claims.Subject)
	}
}

func TestRunRequiresUser(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), fileConfig(t), zerolog.Nop(), []string{"balance"}, &out); err == nil {
		t.Fatalf("expected error without -user")
	}
	if err := run(context.Background(), fileConfig(t), zerolog.Nop(), nil, &out); err == nil {
		t.Fatalf("expected usage error")
	}
}
