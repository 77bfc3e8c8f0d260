package storage

import (
	"context"
	"errors"
	"testing"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "simple", key: "sessions/abc.json", want: "sessions/abc.json"},
		{name: "leadingSlash", key: "/state/marker.json", want: "state/marker.json"},
		{name: "backslashes", key: `sessions\abc.json`, want: "sessions/abc.json"},
		{name: "empty", key: "  ", wantErr: true},
		{name: "parentEscape", key: "../etc/passwd", wantErr: true},
		{name: "innerTraversal", key: "sessions/../../x", wantErr: true},
		{name: "dotSegments", key: "sessions/./abc.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("cleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("cleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStorage(t.TempDir())
	if err := s.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	if err := s.Write(ctx, "sessions/a.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(ctx, "sessions/b.json", []byte(`{"b":2}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "state/marker.json", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	data, err := s.Read(ctx, "sessions/a.json")
	if err != nil || string(data) != `{"a":1}` {
		t.Errorf("Read() = %q, %v", data, err)
	}

	keys, err := s.List(ctx, "sessions/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "sessions/a.json" || keys[1] != "sessions/b.json" {
		t.Errorf("List() = %v", keys)
	}

	if err := s.Delete(ctx, "sessions/a.json"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "sessions/a.json"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
	if _, err := s.Read(ctx, "sessions/a.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalStorageMissingRoot(t *testing.T) {
	s := NewLocalStorage("/nonexistent/contentdesk/root")
	keys, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() = %v, want empty", keys)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	if err := s.Write(context.Background(), "../outside.json", []byte("x")); err == nil {
		t.Error("expected error for traversal key")
	}
}
