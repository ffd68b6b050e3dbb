package sigblob

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshalRoundTrip(t *testing.T) {
	entries := []Entry{
		{Version: EntryVersion, Data: bytes.Repeat([]byte{0xaa}, 256)},
		{Version: EntryVersion, Data: bytes.Repeat([]byte{0xbb}, 256)},
	}
	got, err := Unmarshal(Marshal(entries))
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestEncodedLengthMatchesMarshal(t *testing.T) {
	for _, sizes := range [][]int{{256}, {256, 256}, {256, 512}, {128, 256, 384}} {
		entries := make([]Entry, 0, len(sizes))
		for _, size := range sizes {
			entries = append(entries, Entry{Version: EntryVersion, Data: make([]byte, size)})
		}
		require.Equal(t, EncodedLength(sizes), len(Marshal(entries)), "sizes %v", sizes)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	// Truncated length-delimited field.
	_, err := Unmarshal([]byte{0x0a, 0xff})
	require.ErrorIs(t, err, ErrMalformedBlob)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	blob := Marshal([]Entry{{Version: EntryVersion, Data: []byte("sig")}})
	extra := protowire.AppendTag(nil, 15, protowire.VarintType)
	extra = protowire.AppendVarint(extra, 7)

	got, err := Unmarshal(append(extra, blob...))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte("sig"), got[0].Data)
	require.EqualValues(t, EntryVersion, got[0].Version)
}

func TestUnmarshalEmpty(t *testing.T) {
	got, err := Unmarshal(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
