package manifest

import (
	"fmt"
	"path"
	"strings"
)

// Device filesystem layout. Binary paths follow the fixed 4-segment grammar
// /ext/apps/<category>/<alias>.fap; the category of an installed application
// is recoverable from segment index 2, and the alias is the filename stem.
// This grammar is baked into data already on devices and must not change.
const (
	AppsDir      = "/ext/apps"
	ManifestsDir = "/ext/apps_manifests"
	TempDir      = "/ext/.tmp/mobile"

	BinaryExt   = ".fap"
	ManifestExt = ".fim"
)

// BinaryPath returns the permanent binary path for an alias in a category.
func BinaryPath(category, alias string) string {
	return path.Join(AppsDir, category, alias+BinaryExt)
}

// ManifestPath returns the permanent manifest path for an alias.
func ManifestPath(alias string) string {
	return path.Join(ManifestsDir, alias+ManifestExt)
}

// TempBinaryPath returns the scratch staging path for an alias's binary.
func TempBinaryPath(alias string) string {
	return path.Join(TempDir, alias+BinaryExt)
}

// TempManifestPath returns the scratch staging path for an alias's manifest.
func TempManifestPath(alias string) string {
	return path.Join(TempDir, alias+ManifestExt)
}

// AliasFromPath derives the alias from a manifest's binary path: the stem of
// the last segment of the 4-segment grammar. Paths of the wrong depth are
// rejected so a malformed manifest never triggers file operations on a
// guessed name.
func AliasFromPath(p string) (string, error) {
	parts := splitPath(p)
	if len(parts) != 4 {
		return "", fmt.Errorf("manifest: path %q does not match /ext/apps/<category>/<file>", p)
	}
	name := parts[3]
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", fmt.Errorf("manifest: path %q has no alias stem", p)
	}
	return name, nil
}

// CategoryFromPath derives the category name from segment index 2 of the
// 4-segment binary path.
func CategoryFromPath(p string) (string, error) {
	parts := splitPath(p)
	if len(parts) != 4 {
		return "", fmt.Errorf("manifest: path %q does not match /ext/apps/<category>/<file>", p)
	}
	return parts[2], nil
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
