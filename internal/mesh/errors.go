package mesh

import "fmt"

// ParseErrorKind tags the fundamental-invariant failures a parser can raise.
// Per spec.md §4.1, a parser only returns an error when a fundamental
// invariant is broken; ordinary malformed lines are tolerated up to a
// fixed threshold (maxMalformedOBJLines for OBJ).
type ParseErrorKind int

const (
	// ErrEmptyModel: the parsed result has zero vertices or zero triangles.
	ErrEmptyModel ParseErrorKind = iota
	// ErrCorrupted: the malformed-line/record budget was exceeded.
	ErrCorrupted
	// ErrUnsupportedFormat: the input does not match any known format.
	ErrUnsupportedFormat
	// ErrBadEncoding: the text encoding could not be determined or decoded.
	ErrBadEncoding
)

func (k ParseErrorKind) String() string {
	switch k {
	case ErrEmptyModel:
		return "EmptyModel"
	case ErrCorrupted:
		return "Corrupted"
	case ErrUnsupportedFormat:
		return "UnsupportedFormat"
	case ErrBadEncoding:
		return "BadEncoding"
	default:
		return "Unknown"
	}
}

// ParseError is the typed error returned by every format parser.
type ParseError struct {
	Kind          ParseErrorKind
	Message       string
	LineCount     int    // lines consumed before failure, when known
	Encoding      string // detected text encoding, when applicable
	MalformedLine int    // count of malformed lines tolerated before failing, for ErrCorrupted
}

func (e *ParseError) Error() string {
	if e.Encoding != "" {
		return fmt.Sprintf("parse error (%s): %s [lines=%d encoding=%s]", e.Kind, e.Message, e.LineCount, e.Encoding)
	}
	return fmt.Sprintf("parse error (%s): %s [lines=%d]", e.Kind, e.Message, e.LineCount)
}

func newEmptyModelError(lineCount int, encoding string) *ParseError {
	return &ParseError{
		Kind:      ErrEmptyModel,
		Message:   "model has zero vertices or zero triangles",
		LineCount: lineCount,
		Encoding:  encoding,
	}
}

func newCorruptedError(malformed, limit int) *ParseError {
	return &ParseError{
		Kind:          ErrCorrupted,
		Message:       fmt.Sprintf("exceeded malformed-line budget (%d > %d)", malformed, limit),
		MalformedLine: malformed,
	}
}
