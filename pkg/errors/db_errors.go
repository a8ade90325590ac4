// Package errors classifies storage errors raised by the MySQL backends.
package errors

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unclassified database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDuplicateKey represents a unique key violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeDeadlock represents a deadlock or lock wait timeout (MySQL 1213, 1205).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a lost or refused connection.
	ErrorTypeConnectionError
	// ErrorTypeSchema represents a missing table or column (MySQL 1146, 1054).
	ErrorTypeSchema
)

// String returns the short name used in log fields.
func (t DatabaseErrorType) String() string {
	switch t {
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeDuplicateKey:
		return "duplicate_key"
	case ErrorTypeDeadlock:
		return "deadlock"
	case ErrorTypeConnectionError:
		return "connection"
	case ErrorTypeSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// Retryable reports whether repeating the statement may succeed.
func (e *DatabaseError) Retryable() bool {
	return e.Type == ErrorTypeDeadlock || e.Type == ErrorTypeConnectionError
}

// mysqlCodes maps server error numbers to their classification.
var mysqlCodes = map[uint16]struct {
	typ     DatabaseErrorType
	message string
}{
	1062: {ErrorTypeDuplicateKey, "duplicate key constraint violation"},
	1213: {ErrorTypeDeadlock, "deadlock detected"},
	1205: {ErrorTypeDeadlock, "lock wait timeout exceeded"},
	1146: {ErrorTypeSchema, "table does not exist"},
	1054: {ErrorTypeSchema, "unknown column"},
	1040: {ErrorTypeConnectionError, "too many connections"},
	2006: {ErrorTypeConnectionError, "server has gone away"},
	2013: {ErrorTypeConnectionError, "lost connection during query"},
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"bad connection",
	"invalid connection",
	"dial tcp",
}

// ClassifyDBError classifies a database error into a specific error type.
// It returns nil for a nil error.
//
//	if dbErr := errors.ClassifyDBError(err); dbErr.Retryable() {
//	    // run the statement once more
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if known, ok := mysqlCodes[mysqlErr.Number]; ok {
			return &DatabaseError{Type: known.typ, OriginalErr: err, MySQLErrCode: mysqlErr.Number, Message: known.message}
		}
		return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, MySQLErrCode: mysqlErr.Number, Message: "MySQL error"}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || isConnectionError(err.Error()) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

func isConnectionError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsRetryable checks if the error is transient (deadlock or connection loss).
func IsRetryable(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Retryable()
}
