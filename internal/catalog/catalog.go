// Package catalog defines the remote application catalog surface consumed
// by the orchestrator, and an HTTP client implementing it.
package catalog

import "context"

// VersionStatus is the readiness of a catalog version's build artifacts.
type VersionStatus string

const (
	// VersionReady means the build pipeline has produced installable
	// artifacts for this version.
	VersionReady VersionStatus = "READY"
	// VersionBuilding means the version exists but its artifacts are still
	// being produced.
	VersionBuilding VersionStatus = "BUILDING"
)

// Category is a catalog application category.
type Category struct {
	ID       string
	Name     string
	Icon     string
	Color    string
	Priority int
}

// Version identifies one published build of an application.
type Version struct {
	UID      string
	IconURI  string
	BuildAPI string
	Status   VersionStatus
}

// ApplicationInfo is the catalog-list projection of an application.
type ApplicationInfo struct {
	UID        string
	Alias      string
	CategoryID string
	Name       string
	Summary    string
	Current    Version
}

// Application is the full catalog entity.
type Application struct {
	ApplicationInfo
	Description string
	Changelog   string
}

// SortOrder directions accepted by Applications.
const (
	OrderAscending  = 1
	OrderDescending = -1
)

// Filter scopes an Applications query. Target and API restrict results to
// builds compatible with the paired device so an incompatible build is
// never selected.
type Filter struct {
	Category string
	Search   string
	UIDs     []string
	SortBy   string
	Order    int
	Target   string
	API      string
	Skip     int
	Take     int
}

// Catalog is the remote catalog surface.
type Catalog interface {
	Categories(ctx context.Context) ([]Category, error)
	Featured(ctx context.Context) ([]ApplicationInfo, error)
	Applications(ctx context.Context, filter Filter) ([]ApplicationInfo, error)
	Application(ctx context.Context, uid string) (Application, error)
	Build(ctx context.Context, versionUID, target, api string) ([]byte, error)
	Icon(ctx context.Context, uri string) ([]byte, error)
	Report(ctx context.Context, uid, description string) error
}
