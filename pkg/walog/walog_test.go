package walog

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

type testRecord struct {
	TxID  string `json:"txid"`
	State string `json:"state"`
}

func TestLogAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	want := []testRecord{
		{TxID: "t1", State: "committed"},
		{TxID: "t2", State: "aborted"},
	}
	for _, r := range want {
		if err := l.Append(r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got []testRecord
	err = Replay(path, func(raw json.RawMessage) error {
		var r testRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("replayed %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplayMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	called := false
	if err := Replay(path, func(json.RawMessage) error { called = true; return nil }); err != nil {
		t.Fatalf("Replay() on missing file error = %v", err)
	}
	if called {
		t.Fatal("Replay() invoked callback for a file that doesn't exist")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap")

	type state struct {
		Balance int `json:"balance"`
	}

	if err := WriteSnapshot(path, state{Balance: 42}); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}

	var got state
	ok, err := ReadSnapshot(path, &got)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if !ok {
		t.Fatal("ReadSnapshot() reported no snapshot present")
	}
	if got.Balance != 42 {
		t.Fatalf("Balance = %d, want 42", got.Balance)
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.snap")
	var v map[string]int
	ok, err := ReadSnapshot(path, &v)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if ok {
		t.Fatal("ReadSnapshot() reported present for a missing file")
	}
}
