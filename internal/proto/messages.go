// Package proto implements the device wire protocol: typed messages, the
// envelope codec, and length-delimited framing. One frame carries one
// envelope; an envelope carries a command id for request/response
// correlation, a command status, a has-next marker for streamed exchanges,
// and at most one body message.
package proto

import "time"

// Message is one typed envelope body. Implementations are the request,
// response and push message structs below.
type Message interface {
	bodyNumber() uint32
}

// Request marks messages the bridge sends to the device.
type Request interface {
	Message
	isRequest()
}

// Response is one decoded reply outcome. It is a closed union: OK,
// CommandFailed, or one of the System/Storage payload variants.
type Response interface {
	isResponse()
}

// SystemResponse groups replies from the system sub-protocol.
type SystemResponse interface {
	Response
	isSystem()
}

// StorageResponse groups replies from the storage sub-protocol.
type StorageResponse interface {
	Response
	isStorage()
}

// OK is an empty success reply.
type OK struct{}

func (OK) isResponse() {}

// CommandFailed reports a non-ok command status from the device. It is a
// data error, never conflated with protocol drift (see Envelope.Response).
type CommandFailed struct {
	Status CommandStatus
}

func (CommandFailed) isResponse() {}

// Message returns the human-readable failure description.
func (f CommandFailed) Message() string { return f.Status.Text() }

// Requests -----------------------------------------------------------------

// PingRequest probes link liveness; the device echoes Data back.
type PingRequest struct{ Data []byte }

// PropertyRequest asks for a property stream under the given key. The device
// answers with zero or more Property replies terminated by end-of-stream.
type PropertyRequest struct{ Key string }

// GetDateTimeRequest reads the device clock.
type GetDateTimeRequest struct{}

// SetDateTimeRequest sets the device clock.
type SetDateTimeRequest struct{ Time time.Time }

// UpdateRequest points the device at a staged update manifest and asks it to
// validate the stage. The reply carries an UpdateResult sub-code.
type UpdateRequest struct{ ManifestPath string }

// InfoRequest asks for total/free space of the filesystem containing Path.
type InfoRequest struct{ Path string }

// ListRequest asks for a directory listing.
type ListRequest struct{ Path string }

// StatRequest asks for metadata of a single path.
type StatRequest struct{ Path string }

// ReadRequest streams a file's contents back in chunked FileData replies.
type ReadRequest struct{ Path string }

// WriteRequest carries one chunk of file data. A write is a request stream:
// every chunk but the last is sent with the envelope has-next marker set.
type WriteRequest struct {
	Path string
	Data []byte
}

// DeleteRequest removes a file or, when Recursive is set, a directory tree.
type DeleteRequest struct {
	Path      string
	Recursive bool
}

// MkdirRequest creates a directory. Creating an existing directory fails
// with StatusErrorStorageExist, which callers may treat as success.
type MkdirRequest struct{ Path string }

// RenameRequest moves a file within device storage. The move is atomic on
// the device filesystem.
type RenameRequest struct {
	OldPath string
	NewPath string
}

// HashRequest asks for the MD5 sum of a file.
type HashRequest struct{ Path string }

func (PingRequest) isRequest()        {}
func (PropertyRequest) isRequest()    {}
func (GetDateTimeRequest) isRequest() {}
func (SetDateTimeRequest) isRequest() {}
func (UpdateRequest) isRequest()      {}
func (InfoRequest) isRequest()        {}
func (ListRequest) isRequest()        {}
func (StatRequest) isRequest()        {}
func (ReadRequest) isRequest()        {}
func (WriteRequest) isRequest()       {}
func (DeleteRequest) isRequest()      {}
func (MkdirRequest) isRequest()       {}
func (RenameRequest) isRequest()      {}
func (HashRequest) isRequest()        {}

// System replies -----------------------------------------------------------

// Pong is the echo reply to PingRequest.
type Pong struct{ Data []byte }

// Property is one key/value entry of a property stream.
type Property struct {
	Key   string
	Value string
}

// DateTime is the device clock reading.
type DateTime struct{ Time time.Time }

// UpdateStatus is the staged-update validation outcome.
type UpdateStatus struct{ Result UpdateResult }

func (Pong) isResponse()         {}
func (Pong) isSystem()           {}
func (Property) isResponse()     {}
func (Property) isSystem()       {}
func (DateTime) isResponse()     {}
func (DateTime) isSystem()       {}
func (UpdateStatus) isResponse() {}
func (UpdateStatus) isSystem()   {}

// Storage replies ----------------------------------------------------------

// FileInfo describes one storage entry.
type FileInfo struct {
	Name string
	Dir  bool
	Size uint64
}

// StorageInfo reports total and free space in bytes.
type StorageInfo struct {
	TotalSpace uint64
	FreeSpace  uint64
}

// DirListing is one streamed slice of a directory listing.
type DirListing struct{ Entries []FileInfo }

// FileStat is the metadata reply for a single path.
type FileStat struct{ File FileInfo }

// FileData is one chunk of streamed file contents.
type FileData struct{ Data []byte }

// FileHash is the MD5 reply.
type FileHash struct{ MD5 string }

func (StorageInfo) isResponse() {}
func (StorageInfo) isStorage()  {}
func (DirListing) isResponse()  {}
func (DirListing) isStorage()   {}
func (FileStat) isResponse()    {}
func (FileStat) isStorage()     {}
func (FileData) isResponse()    {}
func (FileData) isStorage()     {}
func (FileHash) isResponse()    {}
func (FileHash) isStorage()     {}

// Push messages ------------------------------------------------------------
// Push frames arrive with command id zero and are routed to registered
// callbacks, never to the request/response queue.

// ScreenFrame is a spontaneous display snapshot.
type ScreenFrame struct {
	Data        []byte
	Orientation uint32
}

// AppStateChanged announces a foreground application state transition.
type AppStateChanged struct{ State uint32 }
