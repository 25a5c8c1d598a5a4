// Package errs implements the error taxonomy every component reports
// through: a small set of kinds, not types, so the command surface can
// translate any error into the single-line message a caller sees.
package errs

import "errors"

// Kind is one of the error categories named in spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindInit
	KindPermissionDenied
	KindNotReady
	KindProtocol
	KindConnectionFailed
	KindStream
	KindCapture
	KindEncode
	KindDecode
	KindRender
	KindCancelled
	KindChecksumMismatch
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init_error"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotReady:
		return "not_ready"
	case KindProtocol:
		return "protocol_error"
	case KindConnectionFailed:
		return "connection_failed"
	case KindStream:
		return "stream_error"
	case KindCapture:
		return "capture_error"
	case KindEncode:
		return "encode_error"
	case KindDecode:
		return "decode_error"
	case KindRender:
		return "render_error"
	case KindCancelled:
		return "cancelled"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind the command surface can
// switch on without string-matching messages.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func newf(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func Init(msg string, err error) *Error               { return newf(KindInit, msg, err) }
func PermissionDenied(msg string) *Error              { return newf(KindPermissionDenied, msg, nil) }
func NotReady(msg string) *Error                      { return newf(KindNotReady, msg, nil) }
func Protocol(msg string) *Error                      { return newf(KindProtocol, msg, nil) }
func ConnectionFailed(msg string, err error) *Error    { return newf(KindConnectionFailed, msg, err) }
func Stream(msg string, err error) *Error              { return newf(KindStream, msg, err) }
func Capture(msg string, err error) *Error             { return newf(KindCapture, msg, err) }
func Encode(msg string, err error) *Error              { return newf(KindEncode, msg, err) }
func Decode(msg string, err error) *Error              { return newf(KindDecode, msg, err) }
func Render(msg string) *Error                         { return newf(KindRender, msg, nil) }
func Cancelled(msg string) *Error                      { return newf(KindCancelled, msg, nil) }
func ChecksumMismatch(msg string) *Error               { return newf(KindChecksumMismatch, msg, nil) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

// UserMessage renders err the way the command surface (C12) presents
// failures to callers: a single line, translated from the Kind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind.String() + ": " + e.Error()
	}
	return err.Error()
}

var (
	ErrNotCapturing  = errors.New("errs: capture not started")
	ErrDisplayNotFound = errors.New("errs: display not found")
)
