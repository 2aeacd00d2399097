package repo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTenantMissing indicates a query was issued without a tenant scope.
	ErrTenantMissing = errors.New("tenant missing")
	// ErrTenantInvalid indicates the tenant identifier could not be parsed.
	ErrTenantInvalid = errors.New("tenant invalid")
)

const uniqueViolation = "23505"

// requireTenant rejects unscoped queries; every table is partitioned by tenant.
func requireTenant(tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrTenantMissing
	}
	return nil
}

// ParseTenant parses a tenant id taken from a request or job payload.
func ParseTenant(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, ErrTenantMissing
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTenantInvalid, err)
	}
	return parsed, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapNoRows swaps pgx.ErrNoRows for the caller's domain sentinel.
func mapNoRows(err, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return err
}
