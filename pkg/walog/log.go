package walog

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Log is an append-only file of terminal records, one per line. Each line is
// a zstd-compressed, base64-encoded JSON blob so that a single corrupt or
// truncated tail line cannot desynchronize the decoder for earlier lines.
// Each unit is compressed independently rather than as one compressed
// stream.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	compressor *Compressor
}

// Open opens (creating if necessary) the log file at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}

	c, err := NewCompressor(3)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Log{file: f, compressor: c}, nil
}

// Append writes record (any JSON-marshalable value) to the log and fsyncs
// before returning, so a reply to the client is never sent ahead of durable
// storage.
func (l *Log) Append(record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	compressed := l.compressor.Compress(data)
	line := base64.StdEncoding.EncodeToString(compressed)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}
	return l.file.Sync()
}

// Close releases the log's file handle and compressor.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compressor.Close()
	return l.file.Close()
}

// Replay reads every record in the log in append order, invoking fn for each
// decoded JSON payload. A malformed trailing line (e.g. from a crash mid-write)
// is skipped rather than failing the whole replay.
func Replay(path string, fn func(raw json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open log %s for replay: %w", path, err)
	}
	defer f.Close()

	dec, err := NewCompressor(3)
	if err != nil {
		return err
	}
	defer dec.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		compressed, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			continue
		}
		raw, err := dec.Decompress(compressed)
		if err != nil {
			continue
		}
		if err := fn(json.RawMessage(raw)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
