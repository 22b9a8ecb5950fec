package mizar

import (
	"context"
	"testing"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"demo-0.1.tar.gz", "application/gzip"},
		{"demo-0.1.log.xz", "application/x-xz"},
		{"demo-0.1.files", "application/octet-stream"},
		{"demo-0.1.meta", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.key); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNewMirrorClientRequiresConfig(t *testing.T) {
	cfg := testConfig(t)
	if _, err := NewMirrorClient(context.Background(), cfg); err == nil {
		t.Error("expected error when mirror configuration is absent")
	}

	// Partial configuration is still unusable.
	cfg.Values["MIRROR_ENDPOINT"] = "https://mirror.example.org"
	cfg.Values["MIRROR_BUCKET"] = "packages"
	if _, err := NewMirrorClient(context.Background(), cfg); err == nil {
		t.Error("expected error when mirror credentials are absent")
	}
}

func TestPublishRequiresMirrorConfig(t *testing.T) {
	cfg := testConfig(t)
	if err := Publish(context.Background(), cfg, "demo-0.1"); err == nil {
		t.Error("expected error without mirror configuration")
	}
}
