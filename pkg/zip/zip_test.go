package zip

import (
	stdzip "archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchive(t *testing.T) {
	entries := []Entry{
		{Name: "scene_1_narration.mp3", Data: []byte("first")},
		{Name: "scene_1_dialogue_0.mp3", Data: []byte("second")},
	}
	blob, err := Archive(entries)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	zr, err := stdzip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d, want 2", len(zr.File))
	}
	for i, entry := range entries {
		f := zr.File[i]
		if f.Name != entry.Name {
			t.Fatalf("file %d name = %q, want %q", i, f.Name, entry.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		if !bytes.Equal(data, entry.Data) {
			t.Fatalf("file %d data = %q, want %q", i, data, entry.Data)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	blob, err := Archive(nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := stdzip.NewReader(bytes.NewReader(blob), int64(len(blob))); err != nil {
		t.Fatalf("empty archive unreadable: %v", err)
	}
}
