package registry

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	entry := r.Register("bank/alice-bank", "http://localhost:9001")
	if entry.Name != "bank/alice-bank" {
		t.Fatalf("entry.Name = %q, want bank/alice-bank", entry.Name)
	}

	got, ok := r.Lookup("bank/alice-bank")
	if !ok {
		t.Fatal("Lookup() found nothing after Register()")
	}
	if got.Address != "http://localhost:9001" {
		t.Fatalf("Address = %q, want http://localhost:9001", got.Address)
	}
}

func TestRegisterOverwritesExistingEntry(t *testing.T) {
	r := New()
	r.Register("coordinator", "http://localhost:9000")
	r.Register("coordinator", "http://localhost:9999")

	got, _ := r.Lookup("coordinator")
	if got.Address != "http://localhost:9999" {
		t.Fatalf("Address = %q, want the latest registration to win", got.Address)
	}
}

func TestDeregisterRemovesEntry(t *testing.T) {
	r := New()
	r.Register("bank/bob-bank", "http://localhost:9002")

	if !r.Deregister("bank/bob-bank") {
		t.Fatal("Deregister() = false for a known entry")
	}
	if _, ok := r.Lookup("bank/bob-bank"); ok {
		t.Fatal("Lookup() found an entry after Deregister()")
	}
	if r.Deregister("bank/bob-bank") {
		t.Fatal("Deregister() = true for an already-removed entry")
	}
}

func TestListReturnsAllEntries(t *testing.T) {
	r := New()
	r.Register("coordinator", "http://localhost:9000")
	r.Register("bank/alice-bank", "http://localhost:9001")

	entries := r.List()
	if len(entries) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(entries))
	}
}
