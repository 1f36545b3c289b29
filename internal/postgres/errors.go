package postgres

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// translate maps constraint violations onto the domain error kinds. Other
// errors pass through unchanged.
func translate(err error, what string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s already exists", orders.ErrConflict, what)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return fmt.Errorf("%w: %s violates %s", orders.ErrValidation, what, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s references a missing row", orders.ErrNotFound, what)
	}
	return err
}
