// Package sigblob encodes and decodes the signature blob that is embedded
// into an OTA payload container. On the wire the blob is the protobuf message
//
//	message Signatures {
//	  message Signature {
//	    uint32 version = 1;
//	    bytes  data    = 2;
//	  }
//	  repeated Signature signatures = 1;
//	}
//
// encoded by hand with protowire so that the serialized length stays a
// closed-form function of the entry count and the per-entry signature sizes.
// That property is what allows a signer to reserve space for the blob before
// any signature exists.
package sigblob

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EntryVersion is the only entry version currently produced by signers.
const EntryVersion = 1

// ErrMalformedBlob indicates the blob bytes do not decode as a Signatures
// message.
var ErrMalformedBlob = errors.New("malformed signature blob")

// Entry is one per-key signature record. Entries are created once during
// signing and immutable afterwards.
type Entry struct {
	Version uint32
	Data    []byte
}

// Field numbers of the Signatures message and its nested Signature message.
const (
	fieldSignatures = protowire.Number(1)

	fieldVersion = protowire.Number(1)
	fieldData    = protowire.Number(2)
)

// Marshal serializes the entries in order. The output for entries with
// Version == EntryVersion always has length EncodedLength of the entry data
// sizes.
func Marshal(entries []Entry) []byte {
	var out []byte
	for _, e := range entries {
		var msg []byte
		msg = protowire.AppendTag(msg, fieldVersion, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(e.Version))
		msg = protowire.AppendTag(msg, fieldData, protowire.BytesType)
		msg = protowire.AppendBytes(msg, e.Data)

		out = protowire.AppendTag(out, fieldSignatures, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	return out
}

// Unmarshal decodes a signature blob into its entries, preserving order.
// Unknown fields are skipped so that receivers tolerate future extensions.
// A nil or empty blob decodes to zero entries.
func Unmarshal(blob []byte) ([]Entry, error) {
	var entries []Entry
	for len(blob) > 0 {
		num, typ, n := protowire.ConsumeTag(blob)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
		}
		blob = blob[n:]

		if num != fieldSignatures || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, blob)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
			}
			blob = blob[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(blob)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
		}
		blob = blob[n:]

		entry, err := unmarshalEntry(msg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func unmarshalEntry(msg []byte) (Entry, error) {
	var e Entry
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return Entry{}, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
		}
		msg = msg[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
			}
			e.Version = uint32(v)
			msg = msg[n:]
		case num == fieldData && typ == protowire.BytesType:
			data, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
			}
			e.Data = append([]byte(nil), data...)
			msg = msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", ErrMalformedBlob, protowire.ParseError(n))
			}
			msg = msg[n:]
		}
	}
	return e, nil
}

// EncodedLength returns the exact length Marshal produces for one entry per
// element of sigSizes, each holding EntryVersion and a signature of that many
// bytes. It performs no cryptographic work; the result depends only on the
// number of entries and their declared sizes.
func EncodedLength(sigSizes []int) int {
	total := 0
	for _, size := range sigSizes {
		inner := protowire.SizeTag(fieldVersion) + protowire.SizeVarint(EntryVersion) +
			protowire.SizeTag(fieldData) + protowire.SizeBytes(size)
		total += protowire.SizeTag(fieldSignatures) + protowire.SizeBytes(inner)
	}
	return total
}
