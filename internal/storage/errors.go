package storage

import (
	"errors"
	"strconv"
)

// CodedError attaches a driver error code to err.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }
func (e *CodedError) Unwrap() error { return e.Err }

// ErrorCode extracts a driver-specific error code for logging: the SQLSTATE
// on Postgres, the error number on MySQL and SQL Server. It returns "" when
// err carries none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var st interface{ SQLState() string }
	if errors.As(err, &st) {
		return st.SQLState()
	}
	var num interface{ SQLErrorNumber() int32 }
	if errors.As(err, &num) {
		return strconv.Itoa(int(num.SQLErrorNumber()))
	}
	return ""
}
