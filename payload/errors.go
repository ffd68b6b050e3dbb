package payload

import (
	"errors"

	"github.com/updatekit/payloadsign/internal/rsapem"
	"github.com/updatekit/payloadsign/sigblob"
	"github.com/updatekit/payloadsign/verify"
)

var (
	// ErrInvalidDigestLength mirrors verify.ErrInvalidDigestLength.
	ErrInvalidDigestLength = verify.ErrInvalidDigestLength
	// ErrMalformedBlob mirrors sigblob.ErrMalformedBlob.
	ErrMalformedBlob = sigblob.ErrMalformedBlob
	// ErrKeyUnreadable indicates a key file that could not be read.
	ErrKeyUnreadable = rsapem.ErrKeyUnreadable
	// ErrKeyMalformed indicates a key file that could not be parsed.
	ErrKeyMalformed = rsapem.ErrKeyMalformed

	// ErrSigningBackend indicates the underlying crypto operation failed for
	// a given key.
	ErrSigningBackend = errors.New("signing backend failure")

	// ErrLayoutInvariant indicates a defect in the size-prediction logic
	// itself: a predicted blob length that disagrees with what signing
	// actually emitted, or a metadata boundary that moved between the
	// unsigned and signed passes. It is not caused by untrusted input and
	// callers should abort rather than retry.
	ErrLayoutInvariant = errors.New("payload layout invariant violated")

	// ErrPayloadIO indicates a container read or write failure.
	ErrPayloadIO = errors.New("payload io failure")
)
