package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the ledger translates.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pqCode(err error) (pq.ErrorCode, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, pqErr.Constraint
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pqCode(err)
	return code == uniqueViolation
}

// foreignKeyTarget returns the missing record kind for a foreign key violation.
func foreignKeyTarget(err error) (string, bool) {
	code, constraint := pqCode(err)
	if code != foreignKeyViolation {
		return "", false
	}
	if constraint == "attendances_subject_id_fkey" {
		return "subject", true
	}
	return "attendee", true
}
