package registry

import (
	"context"
	"net/http/httptest"
	"testing"
)

func newTestService(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	svc := NewService(New())
	server := httptest.NewServer(svc.Router())
	t.Cleanup(server.Close)
	return svc, server
}

func TestServiceRegisterAndLookupRoundTrip(t *testing.T) {
	_, server := newTestService(t)

	ctx := context.Background()
	client := NewClient(server.URL)

	if err := client.Register(ctx, "bank/alice-bank", "http://localhost:9001"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	addr, err := client.Lookup(ctx, "bank/alice-bank")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if addr != "http://localhost:9001" {
		t.Fatalf("address = %q, want http://localhost:9001", addr)
	}
}

func TestServiceLookupMissingEntryFails(t *testing.T) {
	_, server := newTestService(t)
	client := NewClient(server.URL)

	if _, err := client.Lookup(context.Background(), "nowhere"); err == nil {
		t.Fatal("Lookup() for an unregistered name unexpectedly succeeded")
	}
}

func TestServiceDeregisterRemovesEntry(t *testing.T) {
	_, server := newTestService(t)
	client := NewClient(server.URL)
	ctx := context.Background()

	if err := client.Register(ctx, "bank/alice-bank", "http://localhost:9001"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := client.Deregister(ctx, "bank/alice-bank"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if _, err := client.Lookup(ctx, "bank/alice-bank"); err == nil {
		t.Fatal("Lookup() after Deregister() unexpectedly succeeded")
	}
}

func TestServiceDeregisterMissingEntryIsNotAnError(t *testing.T) {
	_, server := newTestService(t)
	client := NewClient(server.URL)

	if err := client.Deregister(context.Background(), "nowhere"); err != nil {
		t.Fatalf("Deregister() for an unregistered name error = %v, want nil", err)
	}
}

func TestServiceListReturnsRegisteredEntries(t *testing.T) {
	_, server := newTestService(t)
	client := NewClient(server.URL)
	ctx := context.Background()

	client.Register(ctx, "coordinator", "http://localhost:9000")
	client.Register(ctx, "bank/bob-bank", "http://localhost:9002")

	entries, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}
