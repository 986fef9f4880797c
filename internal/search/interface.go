package search

import "github.com/pders01/ntrack/internal/tracker"

// Searcher defines the minimal search API used by the API and CLI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// Source is the tracker collection a search engine reads from.
// *tracker.Store implements it.
type Source interface {
	List() []*tracker.Tracker
	Get(id string) (*tracker.Tracker, error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about data changes.
type UpdateListener interface {
	OnTrackerUpdated(t *tracker.Tracker)
}

// DeleteListener can be implemented to get notified when a tracker is deleted.
type DeleteListener interface {
	OnTrackerDeleted(id string)
}

// DebugStatser provides lightweight stats for visibility/debugging.
// Implemented by engines that can report index doc counts, etc.
type DebugStatser interface {
	DocCount() (int, error)
}
