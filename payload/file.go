package payload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/updatekit/payloadsign/verify"
)

// File writes OTA payload containers. A File carries no state across
// WritePayload calls beyond its generation config, so independent containers
// can be written concurrently from separate File values.
type File struct {
	config      GenerationConfig
	initialized bool
}

// Init establishes the version and format parameters for subsequent writes.
func (f *File) Init(config GenerationConfig) error {
	if config.Version.Major != MajorPayloadVersion {
		return fmt.Errorf("unsupported major payload version %d, want %d", config.Version.Major, MajorPayloadVersion)
	}
	f.config = config
	f.initialized = true
	return nil
}

// WritePayload serializes the container to outPath with the contents of
// dataBlobPath as payload body.
//
// With an empty privateKeyPath the reserved signature region of reservedSize
// bytes is zero-filled and no signing happens. With a key, the region is
// populated with the real signature blob over the placeholder hash; a
// non-zero reservedSize that disagrees with the key's blob length is a
// layout invariant violation.
//
// The returned metadata size is identical between the unsigned and signed
// writes for the same configuration.
func (f *File) WritePayload(ctx context.Context, outPath, dataBlobPath, privateKeyPath string, reservedSize uint64) (uint64, error) {
	if !f.initialized {
		return 0, fmt.Errorf("payload file not initialized")
	}

	if privateKeyPath != "" {
		blobLen, err := SignatureBlobLength([]string{privateKeyPath})
		if err != nil {
			return 0, err
		}
		if reservedSize != 0 && reservedSize != blobLen {
			return 0, fmt.Errorf("%w: reserved size %d disagrees with signature blob length %d of key %q",
				ErrLayoutInvariant, reservedSize, blobLen, privateKeyPath)
		}
		reservedSize = blobLen
	}

	body, err := os.ReadFile(dataBlobPath)
	if err != nil {
		return 0, fmt.Errorf("%w: read data blob: %v", ErrPayloadIO, err)
	}

	m := manifest{
		SignaturesOffset: uint64(len(body)),
		SignaturesSize:   reservedSize,
	}
	manifestBytes := m.marshal()
	metadataSize := uint64(headerSize + len(manifestBytes))

	data := make([]byte, 0, metadataSize+uint64(len(body))+reservedSize)
	data = append(data, encodeHeader(f.config.Version.Major, len(manifestBytes))...)
	data = append(data, manifestBytes...)
	data = append(data, body...)
	data = append(data, make([]byte, reservedSize)...)

	if privateKeyPath != "" {
		region := ReservedRegion{Offset: metadataSize + uint64(len(body)), Length: reservedSize}
		hashes, err := hashWithPlaceholders(data, metadataSize, []ReservedRegion{region})
		if err != nil {
			return 0, err
		}
		padded, err := verify.PadRSA2048SHA256Hash(hashes.PayloadHash)
		if err != nil {
			return 0, err
		}
		blob, err := SignHashWithKeys(padded, []string{privateKeyPath})
		if err != nil {
			return 0, err
		}
		if uint64(len(blob)) != reservedSize {
			return 0, fmt.Errorf("%w: reserved %d bytes, signature blob is %d", ErrLayoutInvariant, reservedSize, len(blob))
		}
		copy(data[region.Offset:], blob)
	}

	if err := writeFileAtomic(outPath, data); err != nil {
		return 0, err
	}

	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "payload"))
	logger.Log(ctx, slog.LevelDebug, "wrote payload",
		slog.String("path", outPath),
		slog.Uint64("metadata_size", metadataSize),
		slog.Uint64("reserved_size", reservedSize),
		slog.Bool("signed", privateKeyPath != ""),
	)
	return metadataSize, nil
}

// AddSignatureBlob replaces the reserved signature region of an already
// written container with blob. The blob length must match the reserved
// length exactly; anything else would move bytes the hashes already cover.
func AddSignatureBlob(ctx context.Context, path string, blob []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	layout, err := parseLayout(data)
	if err != nil {
		return err
	}
	if uint64(len(blob)) != layout.Signatures.Length {
		return fmt.Errorf("%w: reserved %d bytes, signature blob is %d",
			ErrLayoutInvariant, layout.Signatures.Length, len(blob))
	}
	copy(data[layout.Signatures.Offset:], blob)
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "payload"))
	logger.Log(ctx, slog.LevelDebug, "embedded signature blob",
		slog.String("path", path),
		slog.Uint64("offset", layout.Signatures.Offset),
		slog.Int("length", len(blob)),
	)
	return nil
}

// writeFileAtomic writes via a temp file in the target directory and renames
// it into place, removing the temp file on every failure path so no
// partially written payload is left behind.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	return nil
}
