package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateKey reports a write rejected by a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

const pqUniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
