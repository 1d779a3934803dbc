package store

// Store defines the interface for solve report persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if a report doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveReport atomically saves a report under its ID, replacing any
	// existing report with the same ID.
	SaveReport(report *Report) error

	// LoadReport retrieves the report with the given ID.
	// Returns ErrNotFound if no report exists for this ID.
	LoadReport(id string) (*Report, error)

	// ListReports returns metadata for all stored reports, newest first.
	ListReports() ([]ReportInfo, error)

	// DeleteReport removes the report and its residual trace.
	// Returns ErrNotFound if no report exists for this ID.
	DeleteReport(id string) error
}

// ErrNotFound is returned when a requested report does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing report.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "report not found: " + e.ID
	}
	return "report not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
