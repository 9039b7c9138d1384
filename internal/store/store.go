// Package store persists work-group tuning results and their trial traces
// on the filesystem.
package store

// Store defines the interface for tuning record persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context
type Store interface {
	// SaveRecord atomically saves rec under rec.ID, replacing any previous
	// record with the same ID.
	SaveRecord(rec *Record) error

	// LoadRecord retrieves the record with the given ID.
	LoadRecord(id string) (*Record, error)

	// ListRecords returns metadata for every stored record, newest first.
	ListRecords() ([]RecordInfo, error)

	// FindBest returns the newest record for the kernel launched over global
	// on the device with the given UUID.
	FindBest(deviceUUID, kernel string, global []int) (*Record, error)

	// DeleteRecord removes the record and its trace.
	DeleteRecord(id string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "tuning record not found: " + e.ID
	}
	return "tuning record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
