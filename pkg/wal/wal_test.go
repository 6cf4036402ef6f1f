package wal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type entry struct {
	Seq int    `json:"seq"`
	Msg string `json:"msg"`
}

func readEntries(t *testing.T, w *WAL) []entry {
	t.Helper()
	var out []entry
	err := w.ReadAll(func(jsonRaw []byte) error {
		var e entry
		if err := json.Unmarshal(jsonRaw, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return out
}

func TestWriteAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := w.Write(entry{Seq: i, Msg: "m"}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	w.Close()

	w, err = NewWAL(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()
	got := readEntries(t, w)
	if len(got) != 3 || got[0].Seq != 1 || got[2].Seq != 3 {
		t.Fatalf("unexpected entries: %+v", got)
	}

	// 讀取後繼續追加
	if err := w.Write(entry{Seq: 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readEntries(t, w); len(got) != 4 {
		t.Fatalf("want 4 entries, got %d", len(got))
	}
}

func TestTornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	if err := w.Write(entry{Seq: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, FileModeReadOnly)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString(`{"seq":2,"ms`)
	f.Close()

	w, err = NewWAL(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()
	if got := readEntries(t, w); len(got) != 1 {
		t.Fatalf("torn entry must be skipped, got %+v", got)
	}

	if err := w.Write(entry{Seq: 2, Msg: "again"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := readEntries(t, w)
	if len(got) != 2 || got[1].Msg != "again" {
		t.Fatalf("write after truncate must be readable, got %+v", got)
	}
}
