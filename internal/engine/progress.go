package engine

// ScopeStatus is the discrete progress state of one video list in a scope.
type ScopeStatus int

const (
	StatusPreValidated ScopeStatus = iota
	StatusValidated
	StatusRefreshing
	StatusDownloading
	StatusIndexing
	StatusIndexingAndSearching
	StatusSearching
	StatusSearched
)

func (s ScopeStatus) String() string {
	switch s {
	case StatusPreValidated:
		return "preValidated"
	case StatusValidated:
		return "validated"
	case StatusRefreshing:
		return "refreshing"
	case StatusDownloading:
		return "downloading"
	case StatusIndexing:
		return "indexing"
	case StatusIndexingAndSearching:
		return "indexingAndSearching"
	case StatusSearching:
		return "searching"
	case StatusSearched:
		return "searched"
	}
	return "unknown"
}

// Reporter receives progress events from a running search. Implementations
// must be safe for concurrent use; events from concurrent searches are
// correlated by run ID.
type Reporter interface {
	// ScopeStatus reports a status transition for one scope.
	ScopeStatus(runID, scope string, status ScopeStatus)
	// Jobs reports coarse pipeline counts for a scope, suitable for a
	// progress bar.
	Jobs(runID, scope string, queued, running, completed int)
}

type nopReporter struct{}

func (nopReporter) ScopeStatus(string, string, ScopeStatus) {}
func (nopReporter) Jobs(string, string, int, int, int)      {}
