package auth

import (
	"context"
	"testing"
)

func TestStaticProviderVerifyToken(t *testing.T) {
	p := NewStaticProvider(map[string]string{"tok-1": "uid-1"})

	got, err := p.VerifyToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if got.UID != "uid-1" {
		t.Fatalf("UID = %q, want %q", got.UID, "uid-1")
	}
}

func TestStaticProviderVerifyTokenUnknown(t *testing.T) {
	p := NewStaticProvider(map[string]string{"tok-1": "uid-1"})

	if _, err := p.VerifyToken(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}
