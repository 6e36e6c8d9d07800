package proto

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	when := time.Unix(1756200000, 0).UTC()

	tests := []struct {
		name string
		env  Envelope
	}{
		{"empty reply", Envelope{CommandID: 3}},
		{"status only", Envelope{CommandID: 4, Status: StatusErrorStorageNotExist}},
		{"has next", Envelope{CommandID: 5, HasNext: true, Body: FileData{Data: []byte{0xde, 0xad}}}},
		{"ping", Envelope{CommandID: 1, Body: PingRequest{Data: []byte{1, 2, 3}}}},
		{"pong", Envelope{CommandID: 1, Body: Pong{Data: []byte{1, 2, 3}}}},
		{"property request", Envelope{CommandID: 2, Body: PropertyRequest{Key: "devinfo"}}},
		{"property", Envelope{CommandID: 2, HasNext: true, Body: Property{Key: "hardware.target", Value: "f7"}}},
		{"get datetime", Envelope{CommandID: 6, Body: GetDateTimeRequest{}}},
		{"set datetime", Envelope{CommandID: 7, Body: SetDateTimeRequest{Time: when}}},
		{"datetime", Envelope{CommandID: 7, Body: DateTime{Time: when}}},
		{"update request", Envelope{CommandID: 8, Body: UpdateRequest{ManifestPath: "/ext/update/manifest.fuf"}}},
		{"update status", Envelope{CommandID: 8, Body: UpdateStatus{Result: UpdateTargetMismatch}}},
		{"info request", Envelope{CommandID: 9, Body: InfoRequest{Path: "/ext"}}},
		{"storage info", Envelope{CommandID: 9, Body: StorageInfo{TotalSpace: 256 << 20, FreeSpace: 100 << 20}}},
		{"list request", Envelope{CommandID: 10, Body: ListRequest{Path: "/ext/apps_manifests"}}},
		{"dir listing", Envelope{CommandID: 10, Body: DirListing{Entries: []FileInfo{
			{Name: "demo.fim", Size: 412},
			{Name: "nested", Dir: true},
		}}}},
		{"stat request", Envelope{CommandID: 11, Body: StatRequest{Path: "/ext/apps/games/demo.fap"}}},
		{"file stat", Envelope{CommandID: 11, Body: FileStat{File: FileInfo{Name: "demo.fap", Size: 9000}}}},
		{"read request", Envelope{CommandID: 12, Body: ReadRequest{Path: "/ext/apps_manifests/demo.fim"}}},
		{"write request", Envelope{CommandID: 13, HasNext: true, Body: WriteRequest{Path: "/ext/.tmp/mobile/demo.fap", Data: []byte("chunk")}}},
		{"delete recursive", Envelope{CommandID: 14, Body: DeleteRequest{Path: "/ext/.tmp/mobile", Recursive: true}}},
		{"mkdir", Envelope{CommandID: 15, Body: MkdirRequest{Path: "/ext/apps/games"}}},
		{"rename", Envelope{CommandID: 16, Body: RenameRequest{OldPath: "/ext/.tmp/mobile/demo.fap", NewPath: "/ext/apps/games/demo.fap"}}},
		{"hash request", Envelope{CommandID: 17, Body: HashRequest{Path: "/ext/apps/games/demo.fap"}}},
		{"file hash", Envelope{CommandID: 17, Body: FileHash{MD5: "d41d8cd98f00b204e9800998ecf8427e"}}},
		{"screen frame", Envelope{CommandID: 0, Body: ScreenFrame{Data: []byte{0xff, 0x00}, Orientation: 1}}},
		{"app state", Envelope{CommandID: 0, Body: AppStateChanged{State: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.env)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.env) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, tt.env)
			}
		})
	}
}

func TestResponseFailedStatusWinsOverPayload(t *testing.T) {
	statuses := []CommandStatus{
		StatusError,
		StatusErrorDecode,
		StatusErrorNotImplemented,
		StatusErrorBusy,
		StatusErrorStorageNotExist,
		StatusErrorStorageExist,
		StatusErrorStorageInvalidName,
		StatusErrorStorageDenied,
		StatusErrorStorageInvalidParameter,
		StatusErrorStorageInternal,
		StatusErrorStorageAlreadyOpen,
		CommandStatus(99), // future firmware code
	}
	bodies := []Message{nil, Pong{Data: []byte("x")}, FileData{Data: []byte("y")}, StorageInfo{TotalSpace: 1}}

	for _, status := range statuses {
		for _, body := range bodies {
			env := Envelope{CommandID: 1, Status: status, Body: body}
			resp, err := env.Response()
			if err != nil {
				t.Fatalf("status %v body %T: %v", status, body, err)
			}
			failed, ok := resp.(CommandFailed)
			if !ok {
				t.Fatalf("status %v body %T: got %T, want CommandFailed", status, body, resp)
			}
			if failed.Status != status {
				t.Errorf("status %v: CommandFailed carries %v", status, failed.Status)
			}
			if failed.Message() == "" {
				t.Errorf("status %v: empty failure message", status)
			}
		}
	}
}

func TestResponseOKOutcomes(t *testing.T) {
	resp, err := Envelope{CommandID: 1}.Response()
	if err != nil {
		t.Fatalf("empty ok reply: %v", err)
	}
	if _, ok := resp.(OK); !ok {
		t.Fatalf("empty ok reply: got %T, want OK", resp)
	}

	resp, err = Envelope{CommandID: 1, Body: Pong{Data: []byte("hi")}}.Response()
	if err != nil {
		t.Fatalf("payload reply: %v", err)
	}
	if _, ok := resp.(Pong); !ok {
		t.Fatalf("payload reply: got %T, want Pong", resp)
	}
}

func TestResponseRejectsRequestBody(t *testing.T) {
	_, err := Envelope{CommandID: 1, Body: PingRequest{}}.Response()
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("got %v, want ErrUnknownMessage", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated varint", []byte{0x08}},
		{"truncated body", []byte{0x2a, 0x05, 0x01}},
		{"bad tag", []byte{0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeUnknownBodyKind(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, fieldCommandID, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, nil)

	_, err := Decode(data)
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("got %v, want ErrUnknownMessage", err)
	}
}

func TestDecodeSkipsUnknownScalarFields(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, fieldCommandID, protowire.VarintType)
	data = protowire.AppendVarint(data, 42)
	data = protowire.AppendTag(data, 4, protowire.VarintType) // unassigned header field
	data = protowire.AppendVarint(data, 1)

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.CommandID != 42 {
		t.Errorf("CommandID = %d, want 42", env.CommandID)
	}
}

func TestUpdateResultCodes(t *testing.T) {
	tests := []struct {
		result UpdateResult
		known  bool
		text   string
	}{
		{UpdateOK, true, "ok"},
		{UpdateStageIntegrityError, true, "stage integrity error"},
		{UpdateTargetMismatch, true, "target mismatch"},
		{UpdateResult(42), false, "unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.result.Known(); got != tt.known {
			t.Errorf("%v.Known() = %v, want %v", uint32(tt.result), got, tt.known)
		}
		if got := tt.result.String(); got != tt.text {
			t.Errorf("%v.String() = %q, want %q", uint32(tt.result), got, tt.text)
		}
	}
}

func TestCommandStatusText(t *testing.T) {
	if got := StatusErrorStorageExist.Text(); got != "storage: path already exists" {
		t.Errorf("Text() = %q", got)
	}
	if got := CommandStatus(99).Text(); got != "status(99)" {
		t.Errorf("unknown Text() = %q", got)
	}
}
