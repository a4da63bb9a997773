package scrape

import "errors"

// Error kinds. Callers test for them with errors.Is.
var (
	// ErrInvalidArgument reports a bad batch size, concurrency or query.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSearchUnavailable reports a failed search call. Executors degrade it to zero URLs.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrFetchFailed reports a failed page fetch or parse. Executors degrade it to zero emails.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrTaskFailed reports a remote batch that failed after its retry budget was spent.
	ErrTaskFailed = errors.New("task failed")
	// ErrDivisionByZero reports a speedup ratio whose denominator elapsed time is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// ErrorKind maps an error onto the stable kind label used in API error bodies.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTaskFailed):
		return "task_failed"
	case errors.Is(err, ErrSearchUnavailable):
		return "search_unavailable"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrDivisionByZero):
		return "division_by_zero"
	default:
		return "internal"
	}
}
