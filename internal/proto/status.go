package proto

import "fmt"

// CommandStatus is the per-reply outcome code carried by every response
// envelope. Zero is success; everything else is a device-reported failure.
type CommandStatus uint32

const (
	StatusOK CommandStatus = iota
	StatusError
	StatusErrorDecode
	StatusErrorNotImplemented
	StatusErrorBusy
	StatusErrorStorageNotExist
	StatusErrorStorageExist
	StatusErrorStorageInvalidName
	StatusErrorStorageDenied
	StatusErrorStorageInvalidParameter
	StatusErrorStorageInternal
	StatusErrorStorageAlreadyOpen
)

var statusText = map[CommandStatus]string{
	StatusOK:                           "ok",
	StatusError:                        "unspecified error",
	StatusErrorDecode:                  "device could not decode request",
	StatusErrorNotImplemented:          "command not implemented",
	StatusErrorBusy:                    "device busy",
	StatusErrorStorageNotExist:         "storage: path does not exist",
	StatusErrorStorageExist:            "storage: path already exists",
	StatusErrorStorageInvalidName:      "storage: invalid name",
	StatusErrorStorageDenied:           "storage: access denied",
	StatusErrorStorageInvalidParameter: "storage: invalid parameter",
	StatusErrorStorageInternal:         "storage: internal error",
	StatusErrorStorageAlreadyOpen:      "storage: file already open",
}

// Text returns the human-readable description for the status. Unknown codes
// are rendered numerically so newer firmware never produces an empty message.
func (s CommandStatus) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// UpdateResult is the sub-code reported by the firmware update staging check.
// Codes are preserved verbatim, including values this build does not know
// about, so callers can branch on device-reported update failures.
type UpdateResult uint32

const (
	UpdateOK UpdateResult = iota
	UpdateManifestPathInvalid
	UpdateManifestFolderNotFound
	UpdateManifestInvalid
	UpdateStageMissing
	UpdateStageIntegrityError
	UpdateManifestPointerError
	UpdateTargetMismatch
)

var updateResultText = map[UpdateResult]string{
	UpdateOK:                     "ok",
	UpdateManifestPathInvalid:    "manifest path invalid",
	UpdateManifestFolderNotFound: "manifest folder not found",
	UpdateManifestInvalid:        "manifest invalid",
	UpdateStageMissing:           "stage missing",
	UpdateStageIntegrityError:    "stage integrity error",
	UpdateManifestPointerError:   "manifest pointer error",
	UpdateTargetMismatch:         "target mismatch",
}

// Known reports whether this build recognizes the code.
func (r UpdateResult) Known() bool {
	_, ok := updateResultText[r]
	return ok
}

func (r UpdateResult) String() string {
	if t, ok := updateResultText[r]; ok {
		return t
	}
	return fmt.Sprintf("unknown(%d)", uint32(r))
}
