package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Container layout:
//
//	magic "CrAU" (4 bytes)
//	major version (uint64, big endian)
//	manifest size (uint64, big endian)
//	metadata signature size (uint32, big endian, currently 0)
//	manifest
//	payload body
//	signature blob (reserved region)
//
// The metadata section is everything up to and including the manifest; its
// size is what WritePayload reports and what the metadata hash covers.
const (
	magic = "CrAU"

	headerSize = len(magic) + 8 + 8 + 4
)

// Manifest field numbers. Both fields are fixed64 on the wire so the
// manifest length never depends on their numeric values; that keeps the
// metadata boundary identical between the unsigned and signed passes.
const (
	manifestFieldSignaturesOffset = protowire.Number(1)
	manifestFieldSignaturesSize   = protowire.Number(2)
)

// ReservedRegion describes a byte range of the container, by absolute
// offset, that holds (or will hold) a signature blob. During hashing the
// range is treated as placeholder bytes rather than its literal content.
type ReservedRegion struct {
	Offset uint64
	Length uint64
}

// Layout is the decoded structural view of a written container.
type Layout struct {
	// MetadataSize is the boundary between the metadata section and the
	// payload body.
	MetadataSize uint64
	// Signatures is the reserved signature region. A zero Length means the
	// container carries no signature blob.
	Signatures ReservedRegion
}

type manifest struct {
	// SignaturesOffset is relative to the end of the metadata section.
	SignaturesOffset uint64
	SignaturesSize   uint64
}

func (m manifest) marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, manifestFieldSignaturesOffset, protowire.Fixed64Type)
	out = protowire.AppendFixed64(out, m.SignaturesOffset)
	out = protowire.AppendTag(out, manifestFieldSignaturesSize, protowire.Fixed64Type)
	out = protowire.AppendFixed64(out, m.SignaturesSize)
	return out
}

func parseManifest(data []byte) (manifest, error) {
	var m manifest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return manifest{}, fmt.Errorf("manifest tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == manifestFieldSignaturesOffset && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return manifest{}, fmt.Errorf("manifest signatures offset: %v", protowire.ParseError(n))
			}
			m.SignaturesOffset = v
			data = data[n:]
		case num == manifestFieldSignaturesSize && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return manifest{}, fmt.Errorf("manifest signatures size: %v", protowire.ParseError(n))
			}
			m.SignaturesSize = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return manifest{}, fmt.Errorf("manifest field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

func encodeHeader(major uint64, manifestLen int) []byte {
	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	header = binary.BigEndian.AppendUint64(header, major)
	header = binary.BigEndian.AppendUint64(header, uint64(manifestLen))
	header = binary.BigEndian.AppendUint32(header, 0) // metadata signature size
	return header
}

func parseLayout(data []byte) (Layout, error) {
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return Layout{}, fmt.Errorf("%w: missing %q magic", ErrPayloadIO, magic)
	}
	major := binary.BigEndian.Uint64(data[len(magic):])
	if major != MajorPayloadVersion {
		return Layout{}, fmt.Errorf("%w: unsupported major payload version %d", ErrPayloadIO, major)
	}
	manifestLen := binary.BigEndian.Uint64(data[len(magic)+8:])
	if manifestLen > uint64(len(data)-headerSize) {
		return Layout{}, fmt.Errorf("%w: manifest size %d exceeds container", ErrPayloadIO, manifestLen)
	}
	metadataSize := uint64(headerSize) + manifestLen
	m, err := parseManifest(data[headerSize:metadataSize])
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	layout := Layout{
		MetadataSize: metadataSize,
		Signatures: ReservedRegion{
			Offset: metadataSize + m.SignaturesOffset,
			Length: m.SignaturesSize,
		},
	}
	end := layout.Signatures.Offset + layout.Signatures.Length
	if end < layout.Signatures.Offset || end > uint64(len(data)) {
		return Layout{}, fmt.Errorf("%w: signature region [%d,+%d) exceeds container of %d bytes",
			ErrPayloadIO, layout.Signatures.Offset, layout.Signatures.Length, len(data))
	}
	return layout, nil
}

// ReadLayout reads the container at path and returns its structural layout:
// the metadata boundary and the reserved signature region.
func ReadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	return parseLayout(data)
}
