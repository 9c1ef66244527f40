package httpapi

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
)

// classifyDBError maps a raw database/sql driver error to an apierr.Error,
// the same string-matching approach api/database/middleware.go's respErr
// uses for SQLite, widened to the constraint-violation phrasing of
// PostgreSQL, MySQL and ClickHouse as well.
func classifyDBError(err error) *apierr.Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "duplicate entry"),
		strings.Contains(msg, "duplicate key value"):
		return apierr.Newf(apierr.KindDb, "record already exists").WithDetails(err.Error())
	case strings.Contains(msg, "foreign key constraint"),
		strings.Contains(msg, "violates foreign key"):
		return apierr.Newf(apierr.KindDb, "foreign key constraint violation").WithDetails(err.Error())
	case strings.Contains(msg, "not null constraint"),
		strings.Contains(msg, "cannot be null"),
		strings.Contains(msg, "violates not-null"):
		return apierr.Newf(apierr.KindDb, "required field is missing").WithDetails(err.Error())
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "doesn't exist"),
		strings.Contains(msg, "does not exist"):
		return apierr.Newf(apierr.KindUnknownTable, "table not found").WithDetails(err.Error())
	default:
		return apierr.Newf(apierr.KindDb, "database error").WithDetails(err.Error())
	}
}
