package apps

import (
	"fmt"

	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/manifest"
)

// StatusKind enumerates the derived application states.
type StatusKind int

const (
	// StatusNotInstalled means no manifest exists for the application.
	StatusNotInstalled StatusKind = iota
	// StatusInstalling means an install is in flight; Progress is valid.
	StatusInstalling
	// StatusUpdating means an update is in flight; Progress is valid.
	StatusUpdating
	// StatusInstalled means the installed version matches the catalog, or
	// the application has no catalog match at all.
	StatusInstalled
	// StatusOutdated means a newer, ready catalog version exists.
	StatusOutdated
	// StatusBuilding means a newer catalog version exists but its build
	// artifacts are not ready yet.
	StatusBuilding
)

func (k StatusKind) String() string {
	switch k {
	case StatusNotInstalled:
		return "notInstalled"
	case StatusInstalling:
		return "installing"
	case StatusUpdating:
		return "updating"
	case StatusInstalled:
		return "installed"
	case StatusOutdated:
		return "outdated"
	case StatusBuilding:
		return "building"
	default:
		return fmt.Sprintf("status(%d)", int(k))
	}
}

// Status is the derived, never-persisted state of one application.
type Status struct {
	Kind     StatusKind
	Progress float64 // 0..1, meaningful for Installing and Updating
}

func (s Status) String() string {
	switch s.Kind {
	case StatusInstalling, StatusUpdating:
		return fmt.Sprintf("%s(%.2f)", s.Kind, s.Progress)
	default:
		return s.Kind.String()
	}
}

// InFlight reports whether the status belongs to a running operation.
func (s Status) InFlight() bool {
	return s.Kind == StatusInstalling || s.Kind == StatusUpdating
}

func progressStatus(updating bool, progress float64) Status {
	if updating {
		return Status{Kind: StatusUpdating, Progress: progress}
	}
	return Status{Kind: StatusInstalling, Progress: progress}
}

// deriveStatus computes an installed application's status from its manifest
// and the matching catalog entry. With no catalog match the application
// defaults to installed: a purely offline app is never flagged outdated.
func deriveStatus(m manifest.Manifest, info *catalog.ApplicationInfo) Status {
	if info == nil {
		return Status{Kind: StatusInstalled}
	}
	if info.Current.UID == m.VersionUID && info.Current.BuildAPI == m.BuildAPI {
		return Status{Kind: StatusInstalled}
	}
	if info.Current.Status == catalog.VersionReady {
		return Status{Kind: StatusOutdated}
	}
	return Status{Kind: StatusBuilding}
}
