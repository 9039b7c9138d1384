package store

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/clhost/internal/tune"
)

func TestTraceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tw, err := NewTraceWriter(dir, "rec-1")
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	trials := []tune.Trial{
		{Local: nil, RunTime: 300 * time.Microsecond},
		{Local: []int{64}, RunTime: 120 * time.Microsecond},
		{Local: []int{2048}, Err: errors.New("work-group too large")},
	}
	for _, trial := range trials {
		if err := tw.WriteTrial(trial); err != nil {
			t.Fatalf("WriteTrial failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tr, err := NewTraceReader(dir, "rec-1")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entries[%d].Seq = %d", i, e.Seq)
		}
	}
	if entries[0].Local != nil {
		t.Errorf("device choice stored as %v", entries[0].Local)
	}
	if entries[1].RunTime != 120*time.Microsecond {
		t.Errorf("RunTime = %v", entries[1].RunTime)
	}
	if entries[2].Error != "work-group too large" {
		t.Errorf("Error = %q", entries[2].Error)
	}
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("expected io.EOF after last entry, got %v", err)
	}
}

func TestTraceConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "rec-1")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				tw.WriteTrial(tune.Trial{Local: []int{i + 1}, RunTime: time.Duration(j)})
			}
		}()
	}
	wg.Wait()
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := NewTraceReader(dir, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 80 {
		t.Fatalf("expected 80 entries, got %d", len(entries))
	}
	seen := make(map[int]bool)
	for _, e := range entries {
		if seen[e.Seq] {
			t.Fatalf("duplicate sequence number %d", e.Seq)
		}
		seen[e.Seq] = true
	}
}

func TestTraceReaderMissing(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
