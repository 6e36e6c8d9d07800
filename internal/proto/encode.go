package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. 1-3 are the envelope header; every body message
// owns one distinct number, so an envelope carries at most one body.
const (
	fieldCommandID = 1
	fieldStatus    = 2
	fieldHasNext   = 3

	bodyPingRequest        = 5
	bodyPropertyRequest    = 6
	bodyGetDateTimeRequest = 7
	bodySetDateTimeRequest = 8
	bodyUpdateRequest      = 9
	bodyInfoRequest        = 10
	bodyListRequest        = 11
	bodyStatRequest        = 12
	bodyReadRequest        = 13
	bodyWriteRequest       = 14
	bodyDeleteRequest      = 15
	bodyMkdirRequest       = 16
	bodyRenameRequest      = 17
	bodyHashRequest        = 18

	bodyPong         = 19
	bodyProperty     = 20
	bodyDateTime     = 21
	bodyUpdateStatus = 22

	bodyStorageInfo = 23
	bodyDirListing  = 24
	bodyFileStat    = 25
	bodyFileData    = 26
	bodyFileHash    = 27

	bodyScreenFrame     = 28
	bodyAppStateChanged = 29
)

func (PingRequest) bodyNumber() uint32        { return bodyPingRequest }
func (PropertyRequest) bodyNumber() uint32    { return bodyPropertyRequest }
func (GetDateTimeRequest) bodyNumber() uint32 { return bodyGetDateTimeRequest }
func (SetDateTimeRequest) bodyNumber() uint32 { return bodySetDateTimeRequest }
func (UpdateRequest) bodyNumber() uint32      { return bodyUpdateRequest }
func (InfoRequest) bodyNumber() uint32        { return bodyInfoRequest }
func (ListRequest) bodyNumber() uint32        { return bodyListRequest }
func (StatRequest) bodyNumber() uint32        { return bodyStatRequest }
func (ReadRequest) bodyNumber() uint32        { return bodyReadRequest }
func (WriteRequest) bodyNumber() uint32       { return bodyWriteRequest }
func (DeleteRequest) bodyNumber() uint32      { return bodyDeleteRequest }
func (MkdirRequest) bodyNumber() uint32       { return bodyMkdirRequest }
func (RenameRequest) bodyNumber() uint32      { return bodyRenameRequest }
func (HashRequest) bodyNumber() uint32        { return bodyHashRequest }
func (Pong) bodyNumber() uint32               { return bodyPong }
func (Property) bodyNumber() uint32           { return bodyProperty }
func (DateTime) bodyNumber() uint32           { return bodyDateTime }
func (UpdateStatus) bodyNumber() uint32       { return bodyUpdateStatus }
func (StorageInfo) bodyNumber() uint32        { return bodyStorageInfo }
func (DirListing) bodyNumber() uint32         { return bodyDirListing }
func (FileStat) bodyNumber() uint32           { return bodyFileStat }
func (FileData) bodyNumber() uint32           { return bodyFileData }
func (FileHash) bodyNumber() uint32           { return bodyFileHash }
func (ScreenFrame) bodyNumber() uint32        { return bodyScreenFrame }
func (AppStateChanged) bodyNumber() uint32    { return bodyAppStateChanged }

// Envelope is one complete wire message.
type Envelope struct {
	CommandID uint32
	Status    CommandStatus
	HasNext   bool
	Body      Message // nil for an empty reply
}

// Encode serializes the envelope into its wire form without the frame
// length prefix.
func Encode(env Envelope) ([]byte, error) {
	var b []byte
	if env.CommandID != 0 {
		b = protowire.AppendTag(b, fieldCommandID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(env.CommandID))
	}
	if env.Status != StatusOK {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(env.Status))
	}
	if env.HasNext {
		b = protowire.AppendTag(b, fieldHasNext, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if env.Body != nil {
		body, err := encodeBody(env.Body)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, protowire.Number(env.Body.bodyNumber()), protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b, nil
}

func encodeBody(m Message) ([]byte, error) {
	var b []byte
	switch v := m.(type) {
	case PingRequest:
		b = appendBytesField(b, 1, v.Data)
	case PropertyRequest:
		b = appendStringField(b, 1, v.Key)
	case GetDateTimeRequest:
		// no fields
	case SetDateTimeRequest:
		b = appendVarintField(b, 1, uint64(v.Time.Unix()))
	case UpdateRequest:
		b = appendStringField(b, 1, v.ManifestPath)
	case InfoRequest:
		b = appendStringField(b, 1, v.Path)
	case ListRequest:
		b = appendStringField(b, 1, v.Path)
	case StatRequest:
		b = appendStringField(b, 1, v.Path)
	case ReadRequest:
		b = appendStringField(b, 1, v.Path)
	case WriteRequest:
		b = appendStringField(b, 1, v.Path)
		b = appendBytesField(b, 2, v.Data)
	case DeleteRequest:
		b = appendStringField(b, 1, v.Path)
		if v.Recursive {
			b = appendVarintField(b, 2, 1)
		}
	case MkdirRequest:
		b = appendStringField(b, 1, v.Path)
	case RenameRequest:
		b = appendStringField(b, 1, v.OldPath)
		b = appendStringField(b, 2, v.NewPath)
	case HashRequest:
		b = appendStringField(b, 1, v.Path)
	case Pong:
		b = appendBytesField(b, 1, v.Data)
	case Property:
		b = appendStringField(b, 1, v.Key)
		b = appendStringField(b, 2, v.Value)
	case DateTime:
		b = appendVarintField(b, 1, uint64(v.Time.Unix()))
	case UpdateStatus:
		b = appendVarintField(b, 1, uint64(v.Result))
	case StorageInfo:
		b = appendVarintField(b, 1, v.TotalSpace)
		b = appendVarintField(b, 2, v.FreeSpace)
	case DirListing:
		for _, f := range v.Entries {
			b = appendBytesField(b, 1, encodeFileInfo(f))
		}
	case FileStat:
		b = appendBytesField(b, 1, encodeFileInfo(v.File))
	case FileData:
		b = appendBytesField(b, 1, v.Data)
	case FileHash:
		b = appendStringField(b, 1, v.MD5)
	case ScreenFrame:
		b = appendBytesField(b, 1, v.Data)
		b = appendVarintField(b, 2, uint64(v.Orientation))
	case AppStateChanged:
		b = appendVarintField(b, 1, uint64(v.State))
	default:
		return nil, fmt.Errorf("proto: cannot encode %T", m)
	}
	return b, nil
}

func encodeFileInfo(f FileInfo) []byte {
	var b []byte
	b = appendStringField(b, 1, f.Name)
	if f.Dir {
		b = appendVarintField(b, 2, 1)
	}
	b = appendVarintField(b, 3, f.Size)
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
