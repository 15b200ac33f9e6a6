package redis

import (
	"context"
	"testing"

	"universe-server/internal/shared/config"

	"github.com/alicebob/miniredis/v2"
)

func TestConnectDisabled(t *testing.T) {
	client, err := Connect(context.Background(), config.RedisConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client when redis is disabled")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client: %v", err)
	}
}

func TestConnectHostPort(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), config.RedisConfig{
		Enabled: true,
		Host:    mr.Host(),
		Port:    mr.Port(),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("stored value = %q, want v", got)
	}
}

func TestConnectURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), config.RedisConfig{
		Enabled: true,
		URL:     "redis://" + mr.Addr() + "/0",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client.Close()
}

func TestConnectBadURL(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{Enabled: true, URL: "not-a-url"})
	if err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestConnectUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), config.RedisConfig{Enabled: true, URL: "redis://" + addr})
	if err == nil {
		t.Fatal("expected ping failure")
	}
}
