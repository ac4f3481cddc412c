package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adeilh/unimart/market"
)

// translateError maps driver failures onto market errors. notFound is
// returned for malformed identifiers.
func translateError(err, notFound error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: duplicate %s", market.ErrInvalidInput, pqErr.Constraint)
		case "23514", "22001", "22003":
			return fmt.Errorf("%w: %s", market.ErrInvalidInput, pqErr.Message)
		case "22P02":
			return notFound
		}
	}
	return err
}
