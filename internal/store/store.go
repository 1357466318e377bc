// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashmarin/filebutler/internal/domain"
)

// Repository defines the interface for persisting the transfer audit log.
type Repository interface {
	// RecordTransfer appends one finished transfer to the audit log.
	RecordTransfer(ctx context.Context, rec *domain.TransferRecord) error

	// RecentTransfers returns the most recent transfers, newest first.
	RecentTransfers(ctx context.Context, limit int) ([]*domain.TransferRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
