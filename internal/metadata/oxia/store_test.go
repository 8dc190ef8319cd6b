package oxia

import (
	"context"
	"errors"
	"strings"
	"testing"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/gridlake-io/gridlake/internal/metadata"
)

// Tests that need a running Oxia server are in integration_test.go.

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "empty service address",
			cfg:     Config{Namespace: "test"},
			wantErr: "service address is required",
		},
		{
			name:    "empty namespace",
			cfg:     Config{ServiceAddress: "localhost:6648"},
			wantErr: "namespace is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", ""},
		{"a", "b"},
		{"abc", "abd"},
		{"/gridlake/v1/clients/", "/gridlake/v1/clients0"},
		{"/gridlake/v1/clients/c1/models/m1/files/sales%2F", "/gridlake/v1/clients/c1/models/m1/files/sales%2G"},
		{string([]byte{0xFF}), ""},
		{string([]byte{0xFF, 0xFF}), ""},
		{string([]byte{0x00, 0xFF}), string([]byte{0x01})},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got := prefixEnd(tt.prefix)
			if got != tt.want {
				t.Errorf("prefixEnd(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestScanEnd(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       string
	}{
		{"explicit end", "/a/", "/b", "/b"},
		{"directory prefix", "/gridlake/v1/orphans/", "", "/gridlake/v1/orphans//"},
		{"plain prefix", "/gridlake/v1/clients/c1/models/m1/files/sales%2F", "", "/gridlake/v1/clients/c1/models/m1/files/sales%2G"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanEnd(tt.start, tt.end); got != tt.want {
				t.Errorf("scanEnd(%q, %q) = %q, want %q", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestVersionOffset(t *testing.T) {
	for _, id := range []int64{0, 1, 41} {
		v := toVersion(oxiaclient.Version{VersionId: id})
		if int64(v) != id+1 {
			t.Errorf("toVersion(%d) = %d", id, v)
		}
		if got := fromVersion(v); got != id {
			t.Errorf("fromVersion(%d) = %d, want %d", v, got, id)
		}
	}
}

func TestTranslate(t *testing.T) {
	if translate("put", nil) != nil {
		t.Error("translate(nil) should be nil")
	}
	if err := translate("put", oxiaclient.ErrUnexpectedVersionId); !errors.Is(err, metadata.ErrVersionMismatch) {
		t.Errorf("translate(version) = %v", err)
	}
	other := errors.New("unavailable")
	err := translate("list", other)
	if !errors.Is(err, other) || !strings.Contains(err.Error(), "oxia: list failed") {
		t.Errorf("translate(other) = %v", err)
	}
}
