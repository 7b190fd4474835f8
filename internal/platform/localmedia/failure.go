package localmedia

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/mediaforge-backend/internal/domain/media"
)

type FailureKind string

const (
	FailureProbe           FailureKind = "probe"
	FailureInvalidArgument FailureKind = "invalid_argument"
	FailureUnknownQuality  FailureKind = "unknown_quality"
	FailureInputMissing    FailureKind = "input_missing"
	FailureMissingBinary   FailureKind = "missing_binary"
	FailureTimeout         FailureKind = "timeout"
	FailureEngine          FailureKind = "engine"
	FailureIO              FailureKind = "io"
)

const maxDiagnosticBytes = 2000

// Failure is the only error type Tools returns. Diagnostic holds the tail of
// the engine's output.
type Failure struct {
	Op         string
	Kind       FailureKind
	Transient  bool
	Diagnostic string
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Op, f.Kind)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	if f.Diagnostic != "" {
		msg += "; out=" + f.Diagnostic
	}
	return strings.ToValidUTF8(msg, "\uFFFD")
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets callers test failures against the media error taxonomy.
func (f *Failure) Is(target error) bool {
	switch target {
	case media.ErrTransformFailure:
		return f.Kind != FailureUnknownQuality && f.Kind != FailureInvalidArgument && f.Kind != FailureProbe
	case media.ErrMetadata:
		return f.Kind == FailureProbe
	case media.ErrUnknownQuality:
		return f.Kind == FailureUnknownQuality
	case media.ErrInvalidArgument:
		return f.Kind == FailureInvalidArgument
	case media.ErrFileMissing:
		return f.Kind == FailureInputMissing
	}
	return false
}

// Class is the coarse label recorded on derivation items.
func (f *Failure) Class() string {
	switch {
	case f.Kind == FailureTimeout:
		return "timeout"
	case f.Transient:
		return "transient"
	default:
		return "permanent"
	}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func invalid(op string, format string, args ...interface{}) *Failure {
	return &Failure{Op: op, Kind: FailureInvalidArgument, Err: fmt.Errorf(format, args...)}
}

var transientMarkers = []string{
	"resource temporarily unavailable",
	"cannot allocate memory",
	"no space left on device",
	"too many open files",
	"input/output error",
	"connection reset",
	"broken pipe",
	"device or resource busy",
}

// classify turns a failed command into a Failure. ctx is the per-call
// context, so an expired deadline reads as a timeout even when the process
// reports a plain kill. out is what the engine wrote to stderr.
func classify(ctx context.Context, op string, out []byte, err error) *Failure {
	diag := diagnostic(out)
	f := &Failure{Op: op, Kind: FailureEngine, Diagnostic: diag, Err: err}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		f.Kind = FailureTimeout
		f.Transient = true
	case errors.Is(ctx.Err(), context.Canceled):
		f.Kind = FailureEngine
		f.Err = ctx.Err()
	case errors.Is(err, exec.ErrNotFound):
		f.Kind = FailureMissingBinary
	default:
		lower := strings.ToLower(diag)
		for _, m := range transientMarkers {
			if strings.Contains(lower, m) {
				f.Transient = true
				break
			}
		}
	}
	return f
}

func diagnostic(out []byte) string {
	return tail(strings.TrimSpace(string(out)), maxDiagnosticBytes)
}

// tail keeps at most the last n bytes of s, starting on a rune boundary.
// Engine output is not guaranteed UTF-8, so invalid bytes are replaced.
func tail(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
