package db

import (
	"strings"

	"github.com/teranos/scholar/errors"
)

// ErrDatabaseClosed is returned for writes attempted after shutdown closed the database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed. The
// sql package returns its own unexported error, so the message is checked too.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
