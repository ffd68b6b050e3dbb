package payload

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"
	slogcontext "github.com/veqryn/slog-context"
)

// placeholderByte is the pattern substituted for reserved regions while
// hashing, so that the hash is independent of whether a region currently
// holds filler or a real signature blob of the same length.
const placeholderByte = 0x00

// PayloadHashSet holds the two digests a signing pass covers.
type PayloadHashSet struct {
	// PayloadHash covers the full container with reserved regions
	// substituted by the placeholder pattern.
	PayloadHash []byte
	// MetadataHash covers the metadata section only, with the same
	// substitution applied.
	MetadataHash []byte
}

// PayloadDigest returns the payload hash in canonical digest form.
func (s PayloadHashSet) PayloadDigest() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, s.PayloadHash)
}

// MetadataDigest returns the metadata hash in canonical digest form.
func (s PayloadHashSet) MetadataDigest() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, s.MetadataHash)
}

// HashPayloadForSigning computes the hashes of the container at path that a
// signature must cover. Each reserved region is overlaid with the
// placeholder pattern before hashing, so calling this on a freshly written
// container (zero-filled region) and again after the real signature blob has
// been embedded yields identical hashes as long as the region length is
// unchanged.
func HashPayloadForSigning(ctx context.Context, path string, regions []ReservedRegion) (PayloadHashSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PayloadHashSet{}, fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	layout, err := parseLayout(data)
	if err != nil {
		return PayloadHashSet{}, err
	}
	hashes, err := hashWithPlaceholders(data, layout.MetadataSize, regions)
	if err != nil {
		return PayloadHashSet{}, err
	}

	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "payload"))
	logger.Log(ctx, slog.LevelDebug, "hashed payload for signing",
		slog.String("path", path),
		slog.String("payload_hash", hashes.PayloadDigest().String()),
		slog.String("metadata_hash", hashes.MetadataDigest().String()),
		slog.Int("reserved_regions", len(regions)),
	)
	return hashes, nil
}

// hashWithPlaceholders is the pure hashing pass shared by the signer and the
// writer. It never mutates data.
func hashWithPlaceholders(data []byte, metadataSize uint64, regions []ReservedRegion) (PayloadHashSet, error) {
	if metadataSize > uint64(len(data)) {
		return PayloadHashSet{}, fmt.Errorf("%w: metadata size %d exceeds container of %d bytes",
			ErrLayoutInvariant, metadataSize, len(data))
	}
	masked := append([]byte(nil), data...)
	for _, region := range regions {
		end := region.Offset + region.Length
		if end > uint64(len(masked)) || end < region.Offset {
			return PayloadHashSet{}, fmt.Errorf("%w: reserved region [%d,+%d) exceeds container of %d bytes",
				ErrLayoutInvariant, region.Offset, region.Length, len(masked))
		}
		for i := region.Offset; i < end; i++ {
			masked[i] = placeholderByte
		}
	}
	payloadHash := sha256.Sum256(masked)
	metadataHash := sha256.Sum256(masked[:metadataSize])
	return PayloadHashSet{
		PayloadHash:  payloadHash[:],
		MetadataHash: metadataHash[:],
	}, nil
}
