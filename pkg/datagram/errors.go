package datagram

import "errors"

// Sentinel errors matching spec.md §7's taxonomy one-for-one. All are
// fatal for the frame they occur on; session disposition is the
// caller's decision (see pkg/session).
var (
	// ErrInvalidSignature: first 4 bytes of a frame are not "NTTK".
	// The frame is dropped silently — it may belong to another
	// protocol sharing the port.
	ErrInvalidSignature = errors.New("datagram: invalid signature")

	// ErrTruncatedFrame: the reader ran out of bytes mid-field.
	ErrTruncatedFrame = errors.New("datagram: truncated frame")

	// ErrInvalidCryptoMark: cryptoMark is neither "CC" nor "NC", or a
	// variant's type does not match the mark the header declared.
	ErrInvalidCryptoMark = errors.New("datagram: invalid crypto mark")

	// ErrInvalidVersion: PrivateHeader.Version != 1.
	ErrInvalidVersion = errors.New("datagram: invalid version")

	// ErrWrongType: a variant-specific deserializer was invoked for a
	// PrivateHeader whose type does not match that variant.
	ErrWrongType = errors.New("datagram: wrong type for deserializer")

	// ErrCryptoFailure: an AEAD open or seal failed.
	ErrCryptoFailure = errors.New("datagram: crypto failure")

	// ErrMalformedPayload: SPACK parsing failed, or length prefixes
	// were inconsistent with the remaining bytes.
	ErrMalformedPayload = errors.New("datagram: malformed payload")

	// ErrUnknownTask: a SendMetrics datagram references a taskId not
	// present in the caller-supplied task descriptor map.
	ErrUnknownTask = errors.New("datagram: unknown task")

	// ErrNotLinked: an encrypted variant was serialized or
	// deserialized without a bound ECDHE session.
	ErrNotLinked = errors.New("datagram: not linked to an ECDHE session")
)
