package manifest

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestManifestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
	}{
		{
			name: "full record",
			m: Manifest{
				FullName:   "Demo Application",
				Icon:       []byte{0x89, 0x50, 0x4e, 0x47},
				BuildAPI:   "73.1",
				UID:        "64d5c8f4a1b2c3d4e5f60718",
				VersionUID: "64d5c8f4a1b2c3d4e5f60719",
				Path:       "/ext/apps/games/demo.fap",
			},
		},
		{
			name: "empty icon",
			m: Manifest{
				FullName:   "No Icon",
				BuildAPI:   "73.1",
				UID:        "a",
				VersionUID: "b",
				Path:       "/ext/apps/tools/noicon.fap",
			},
		},
		{
			name: "zero value",
			m:    Manifest{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.m))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got.Icon, tt.m.Icon) {
				t.Errorf("Icon = %v, want %v", got.Icon, tt.m.Icon)
			}
			got.Icon, tt.m.Icon = nil, nil
			if !reflect.DeepEqual(got, tt.m) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, tt.m)
			}
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad tag", []byte{0x80}},
		{"truncated string", []byte{0x0a, 0x10, 'x'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("got %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	data := Encode(Manifest{UID: "app", Path: "/ext/apps/misc/app.fap"})
	data = protowire.AppendTag(data, 9, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.UID != "app" || m.Path != "/ext/apps/misc/app.fap" {
		t.Errorf("known fields lost: %#v", m)
	}
}

func TestPathGrammar(t *testing.T) {
	if got := BinaryPath("games", "demo"); got != "/ext/apps/games/demo.fap" {
		t.Errorf("BinaryPath = %q", got)
	}
	if got := ManifestPath("demo"); got != "/ext/apps_manifests/demo.fim" {
		t.Errorf("ManifestPath = %q", got)
	}
	if got := TempBinaryPath("demo"); got != "/ext/.tmp/mobile/demo.fap" {
		t.Errorf("TempBinaryPath = %q", got)
	}
	if got := TempManifestPath("demo"); got != "/ext/.tmp/mobile/demo.fim" {
		t.Errorf("TempManifestPath = %q", got)
	}
}

func TestAliasFromPath(t *testing.T) {
	tests := []struct {
		path    string
		alias   string
		wantErr bool
	}{
		{"/ext/apps/games/demo.fap", "demo", false},
		{"/ext/apps/tools/multi.dot.fap", "multi.dot", false},
		{"/ext/apps/games/noext", "noext", false},
		{"/ext/apps/demo.fap", "", true},
		{"/ext/apps/games/nested/demo.fap", "", true},
		{"/ext/apps/games/.fap", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		alias, err := AliasFromPath(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("AliasFromPath(%q): expected error, got %q", tt.path, alias)
			}
			continue
		}
		if err != nil {
			t.Errorf("AliasFromPath(%q): %v", tt.path, err)
			continue
		}
		if alias != tt.alias {
			t.Errorf("AliasFromPath(%q) = %q, want %q", tt.path, alias, tt.alias)
		}
	}
}

func TestCategoryFromPath(t *testing.T) {
	got, err := CategoryFromPath("/ext/apps/games/demo.fap")
	if err != nil {
		t.Fatalf("CategoryFromPath: %v", err)
	}
	if got != "games" {
		t.Errorf("category = %q, want games", got)
	}
	if _, err := CategoryFromPath("/ext/apps/demo.fap"); err == nil {
		t.Error("short path: expected error")
	}
}
