package inference

import "errors"

// Code classifies inference failures.
type Code string

const (
	CodeUnconfigured       Code = "unconfigured"
	CodeBusy               Code = "busy"
	CodeCreationFailed     Code = "creation_failed"
	CodeNotReady           Code = "not_ready"
	CodeEmptyPrompt        Code = "empty_prompt"
	CodeTokenizationFailed Code = "tokenization_failed"
	CodeDecodeFailed       Code = "decode_failed"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeCorrupt            Code = "corrupt"
	CodeIOError            Code = "io_error"
)

// inferenceError carries a Code and an optional cause.
type inferenceError struct {
	code Code
	msg  string
	err  error
}

func (e *inferenceError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *inferenceError) Unwrap() error { return e.err }

// Is matches any error of the same code, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *inferenceError) Is(target error) bool {
	t, ok := target.(*inferenceError)
	return ok && t.code == e.code
}

func newError(code Code, msg string, cause error) error {
	return &inferenceError{code: code, msg: "inference: " + msg, err: cause}
}

// Sentinels for errors.Is.
var (
	ErrUnconfigured       = newError(CodeUnconfigured, "context is not configured", nil)
	ErrBusy               = newError(CodeBusy, "generation already in progress", nil)
	ErrCreationFailed     = newError(CodeCreationFailed, "failed to create decode state", nil)
	ErrNotReady           = newError(CodeNotReady, "context is not ready", nil)
	ErrEmptyPrompt        = newError(CodeEmptyPrompt, "prompt is empty", nil)
	ErrTokenizationFailed = newError(CodeTokenizationFailed, "tokenization failed", nil)
	ErrDecodeFailed       = newError(CodeDecodeFailed, "decode failed", nil)
	ErrInvalidArgument    = newError(CodeInvalidArgument, "invalid argument", nil)
	ErrCorrupt            = newError(CodeCorrupt, "state data is corrupt", nil)
	ErrIO                 = newError(CodeIOError, "state file i/o failed", nil)
)

// CodeOf returns the code of an inference error, or "" for other errors.
func CodeOf(err error) Code {
	var ie *inferenceError
	if errors.As(err, &ie) {
		return ie.code
	}
	return ""
}
