// Package manifest implements the on-device application descriptor: the
// record created when an install completes and the single source of truth
// for "is this application installed and at what version". Manifests are
// stored as compact binary .fim files in the device manifests directory.
package manifest

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Manifest describes one installed application.
type Manifest struct {
	FullName   string // human-readable application name
	Icon       []byte // icon image bytes, may be empty
	BuildAPI   string // firmware API level the binary was compiled for
	UID        string // catalog application id
	VersionUID string // catalog version id of the installed binary
	Path       string // device path of the installed binary
}

// ErrCorrupt reports manifest bytes that do not decode. During a directory
// scan a corrupt manifest is skipped, not fatal.
var ErrCorrupt = errors.New("manifest: corrupt record")

const (
	fieldFullName   = 1
	fieldIcon       = 2
	fieldBuildAPI   = 3
	fieldUID        = 4
	fieldVersionUID = 5
	fieldPath       = 6
)

// Encode serializes the manifest to its on-device binary form. Encoding is
// a lossless round-trip for every field, including empty icon bytes.
func Encode(m Manifest) []byte {
	var b []byte
	b = appendString(b, fieldFullName, m.FullName)
	b = protowire.AppendTag(b, fieldIcon, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Icon)
	b = appendString(b, fieldBuildAPI, m.BuildAPI)
	b = appendString(b, fieldUID, m.UID)
	b = appendString(b, fieldVersionUID, m.VersionUID)
	b = appendString(b, fieldPath, m.Path)
	return b
}

// Decode parses a manifest from its on-device binary form.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Manifest{}, fmt.Errorf("%w: bad tag", ErrCorrupt)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Manifest{}, fmt.Errorf("%w: field %d", ErrCorrupt, num)
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return Manifest{}, fmt.Errorf("%w: field %d", ErrCorrupt, num)
		}
		data = data[n:]
		switch num {
		case fieldFullName:
			m.FullName = string(v)
		case fieldIcon:
			m.Icon = append([]byte(nil), v...)
		case fieldBuildAPI:
			m.BuildAPI = string(v)
		case fieldUID:
			m.UID = string(v)
		case fieldVersionUID:
			m.VersionUID = string(v)
		case fieldPath:
			m.Path = string(v)
		}
	}
	return m, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
