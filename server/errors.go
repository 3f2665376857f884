package server

import "fmt"

// Expected conditions travel as typed error values so the dispatcher can turn
// them into error frames without killing the connection. Only transport
// failures and protocol desynchronization escape the read loop.

type errorKind int

const (
	errKindProtocol errorKind = iota
	errKindValidation
	errKindStorage
)

type chatError struct {
	kind    errorKind
	message string
	err     error
}

func (e *chatError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *chatError) Unwrap() error { return e.err }

func protocolErr(message string) *chatError {
	return &chatError{kind: errKindProtocol, message: message}
}

func validationErrf(format string, args ...any) *chatError {
	return &chatError{kind: errKindValidation, message: fmt.Sprintf(format, args...)}
}

func storageErr(err error) *chatError {
	return &chatError{kind: errKindStorage, message: "Database error", err: err}
}
