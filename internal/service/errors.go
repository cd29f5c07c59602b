package service

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/lock"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
	pgLockNotAvailable    = "55P03"
)

// mapPublicationError turns engine and storage failures into API errors.
func mapPublicationError(err error, cycleID string) error {
	if err == nil {
		return nil
	}
	details := map[string]any{"cycleId": cycleID}

	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, domain.ErrReconciliationFailure) && !hasPgCode(err, pgLockNotAvailable):
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			details["pgCode"] = pgErr.Code
		}
		return apperrors.NewReconciliationFailure(details, err)
	case errors.Is(err, domain.ErrCycleNotFound), errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("evaluation cycle", details)
	case errors.Is(err, domain.ErrInvalidCycleState):
		return apperrors.NewInvalidCycleState(err.Error(), details, err)
	case errors.Is(err, domain.ErrEmptyEvaluationTypes):
		return apperrors.NewEmptyEvaluationTypes(details, err)
	case errors.Is(err, domain.ErrMalformedHierarchy):
		return apperrors.NewMalformedHierarchy(err.Error(), details, err)
	case errors.Is(err, domain.ErrUnknownEvaluationType):
		return apperrors.NewValidationError(err.Error(), details)
	case errors.Is(err, lock.ErrNotAcquired), hasPgCode(err, pgLockNotAvailable):
		return apperrors.NewConflict("cycle publication already in progress", details)
	}
	return mapPgError(err, details)
}

// mapPgError handles constraint and input errors reported by postgres.
func mapPgError(err error, details map[string]any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperrors.NewConflict("resource already exists", withConstraint(details, pgErr))
		case pgForeignKeyViolation:
			return apperrors.NewValidationError("referenced resource does not exist", withConstraint(details, pgErr))
		case pgInvalidTextRepr:
			return apperrors.NewValidationError("malformed identifier", details)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("resource", details)
	}
	return apperrors.NewInternalError(err)
}

func withConstraint(details map[string]any, pgErr *pgconn.PgError) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	if pgErr.ConstraintName != "" {
		details["constraint"] = pgErr.ConstraintName
	}
	return details
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
