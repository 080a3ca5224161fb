package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"family-planner/internal/model"
)

// classify maps a gorm/driver error onto the remote error taxonomy.
func classify(action string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", action, model.ErrAlreadyExists)
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		strings.Contains(err.Error(), "database is closed"):
		return fmt.Errorf("%s: %w: %v", action, model.ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %v", action, model.ErrRemoteRejected, err)
	}
}
