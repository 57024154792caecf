package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "http://nope", time.Second); err == nil {
		t.Fatal("expected error for non-redis url")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "redis://127.0.0.1:1/0", 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected ping error")
	}
}

func TestNewRedisClient_Live(t *testing.T) {
	url := os.Getenv("COORD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("COORD_TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(context.Background(), url, time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := (Pinger{Client: client}).Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
