package errors

import "fmt"

var (
	ErrInvalidRoom         = fmt.Errorf("room is not in the allow-list")
	ErrEmptyMessage        = fmt.Errorf("message body is empty")
	ErrUnknownTarget       = fmt.Errorf("no connection matches the target identity")
	ErrDuplicateConnection = fmt.Errorf("connection id already registered")
	ErrStorageUnavailable  = fmt.Errorf("message store unavailable")
	ErrSinkFull            = fmt.Errorf("connection send buffer full")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrUserAlreadyExists   = fmt.Errorf("username already taken")
	ErrInvalidCredentials  = fmt.Errorf("invalid username or password")
	ErrInvalidPassword     = fmt.Errorf("password does not meet complexity rules")
	ErrInvalidSignup       = fmt.Errorf("signup request rejected")
	ErrReservedUsername    = fmt.Errorf("username uses a reserved prefix")
	ErrTokenGeneration     = fmt.Errorf("unable to generate session token")
	ErrInvalidPayload      = fmt.Errorf("unexpected event payload")
	ErrOnlyCensoredFiles   = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
)
