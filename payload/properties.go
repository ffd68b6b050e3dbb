package payload

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/opencontainers/go-digest"
)

// Properties are the values an update server publishes next to a payload
// artifact so a device can validate the download before applying it. Hashes
// are over the file as published, signature bytes included.
type Properties struct {
	PayloadHash  digest.Digest `json:"payload_hash"`
	PayloadSize  uint64        `json:"payload_size"`
	MetadataHash digest.Digest `json:"metadata_hash"`
	MetadataSize uint64        `json:"metadata_size"`
}

// ExtractProperties reads a written container and derives its published
// properties.
func ExtractProperties(_ context.Context, path string) (Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Properties{}, fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	layout, err := parseLayout(data)
	if err != nil {
		return Properties{}, err
	}
	payloadHash := sha256.Sum256(data)
	metadataHash := sha256.Sum256(data[:layout.MetadataSize])
	return Properties{
		PayloadHash:  digest.NewDigestFromBytes(digest.SHA256, payloadHash[:]),
		PayloadSize:  uint64(len(data)),
		MetadataHash: digest.NewDigestFromBytes(digest.SHA256, metadataHash[:]),
		MetadataSize: layout.MetadataSize,
	}, nil
}
