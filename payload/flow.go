package payload

import (
	"context"
	"fmt"
	"log/slog"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/updatekit/payloadsign/verify"
)

// flowState tracks progress of the two-pass signing protocol.
type flowState int

const (
	stateUnsigned flowState = iota
	stateHashKnown
	stateSigned
	stateVerified
)

func (s flowState) String() string {
	switch s {
	case stateUnsigned:
		return "unsigned"
	case stateHashKnown:
		return "hash-known"
	case stateSigned:
		return "signed"
	case stateVerified:
		return "verified"
	}
	return fmt.Sprintf("flowState(%d)", int(s))
}

// SigningFlow drives the two-pass signing protocol over a single container:
// reserve space, hash with placeholder, sign, rewrite with the real blob,
// verify the round trip. Steps must run in order; out-of-order invocation is
// rejected rather than left to convention. A flow instance is bound to one
// container and must not be used concurrently.
type SigningFlow struct {
	file         *File
	outPath      string
	dataBlobPath string
	keyPaths     []string

	state        flowState
	reservedSize uint64
	metadataSize uint64
	hashes       PayloadHashSet
}

// NewSigningFlow binds a flow to an initialized File, an output path, a data
// blob and the ordered signing key list.
func NewSigningFlow(file *File, outPath, dataBlobPath string, keyPaths ...string) *SigningFlow {
	return &SigningFlow{
		file:         file,
		outPath:      outPath,
		dataBlobPath: dataBlobPath,
		keyPaths:     keyPaths,
	}
}

// WriteUnsigned moves the flow from unsigned to hash-known: it predicts the
// blob length, writes the container with a zero-filled reserved region,
// captures the metadata boundary and hashes the placeholder layout.
func (f *SigningFlow) WriteUnsigned(ctx context.Context) error {
	if err := f.require(stateUnsigned, "write unsigned payload"); err != nil {
		return err
	}
	reserved, err := SignatureBlobLength(f.keyPaths)
	if err != nil {
		return err
	}
	metadataSize, err := f.file.WritePayload(ctx, f.outPath, f.dataBlobPath, "", reserved)
	if err != nil {
		return err
	}
	layout, err := ReadLayout(f.outPath)
	if err != nil {
		return err
	}
	hashes, err := HashPayloadForSigning(ctx, f.outPath, []ReservedRegion{layout.Signatures})
	if err != nil {
		return err
	}

	f.reservedSize = reserved
	f.metadataSize = metadataSize
	f.hashes = hashes
	f.state = stateHashKnown
	return nil
}

// Sign moves the flow from hash-known to signed: it signs the captured
// payload hash with every key, rewrites the container and embeds the real
// blob. The metadata boundary of the rewrite must equal the one captured by
// WriteUnsigned; a mismatch is fatal.
func (f *SigningFlow) Sign(ctx context.Context) error {
	if err := f.require(stateHashKnown, "sign payload"); err != nil {
		return err
	}
	padded, err := verify.PadRSA2048SHA256Hash(f.hashes.PayloadHash)
	if err != nil {
		return err
	}
	blob, err := SignHashWithKeys(padded, f.keyPaths)
	if err != nil {
		return err
	}

	metadataSize, err := f.file.WritePayload(ctx, f.outPath, f.dataBlobPath, "", f.reservedSize)
	if err != nil {
		return err
	}
	if metadataSize != f.metadataSize {
		return fmt.Errorf("%w: metadata size moved between passes: %d then %d",
			ErrLayoutInvariant, f.metadataSize, metadataSize)
	}
	if err := AddSignatureBlob(ctx, f.outPath, blob); err != nil {
		return err
	}

	f.state = stateSigned
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "payload"))
	logger.Log(ctx, slog.LevelDebug, "signed payload",
		slog.String("path", f.outPath),
		slog.Int("keys", len(f.keyPaths)),
		slog.String("payload_hash", f.hashes.PayloadDigest().String()),
	)
	return nil
}

// Verify moves the flow from signed to verified by checking the written
// container against the paired public key. A rejected signature aborts the
// flow; the artifact must not be published.
func (f *SigningFlow) Verify(ctx context.Context, publicKeyPath string) error {
	if err := f.require(stateSigned, "verify signed payload"); err != nil {
		return err
	}
	ok, err := VerifySignedPayload(ctx, f.outPath, publicKeyPath)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("self-check rejected signed payload %q against key %q", f.outPath, publicKeyPath)
	}
	f.state = stateVerified
	return nil
}

// Run executes all steps in order. An empty publicKeyPath skips the final
// self-check and leaves the flow in the signed state.
func (f *SigningFlow) Run(ctx context.Context, publicKeyPath string) error {
	if err := f.WriteUnsigned(ctx); err != nil {
		return err
	}
	if err := f.Sign(ctx); err != nil {
		return err
	}
	if publicKeyPath == "" {
		return nil
	}
	return f.Verify(ctx, publicKeyPath)
}

func (f *SigningFlow) require(want flowState, op string) error {
	if f.state != want {
		return fmt.Errorf("cannot %s in state %q, want %q", op, f.state, want)
	}
	return nil
}
