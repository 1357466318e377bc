package domain

import "time"

// TransferStatus is the terminal outcome of one transfer, recorded in the
// audit log.
type TransferStatus string

const (
	TransferOK        TransferStatus = "ok"
	TransferFailed    TransferStatus = "failed"
	TransferCancelled TransferStatus = "cancelled"
)

// TransferRecord is one row of the transfer-history audit log.
type TransferRecord struct {
	ID         int64
	ChatID     int64
	Flow       string
	Name       string
	Bytes      int64
	Status     TransferStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
