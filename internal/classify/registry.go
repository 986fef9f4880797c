package classify

import (
	"context"
	"sort"
	"sync"
)

// Detector recognizes one kind of source. Detect reports false when the
// target is not its kind, or when a lookup it depends on failed, so the
// next detector gets a chance.
type Detector interface {
	// Name returns the detector name for identification
	Name() string

	// Priority orders detectors (higher runs first)
	Priority() int

	// Detect inspects the target and returns the resolved endpoints
	Detect(ctx context.Context, t *Target) (*Result, bool)
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc struct {
	name     string
	priority int
	detect   func(ctx context.Context, t *Target) (*Result, bool)
}

// NewDetector builds a Detector from a function.
func NewDetector(name string, priority int, fn func(ctx context.Context, t *Target) (*Result, bool)) *DetectorFunc {
	return &DetectorFunc{name: name, priority: priority, detect: fn}
}

func (d *DetectorFunc) Name() string  { return d.name }
func (d *DetectorFunc) Priority() int { return d.priority }

func (d *DetectorFunc) Detect(ctx context.Context, t *Target) (*Result, bool) {
	return d.detect(ctx, t)
}

// Registry keeps detectors sorted by descending priority. Detectors of equal
// priority run in registration order.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a detector
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detectors = append(r.detectors, d)
	sort.SliceStable(r.detectors, func(i, j int) bool {
		return r.detectors[i].Priority() > r.detectors[j].Priority()
	})
}

// Detect runs the detectors in order and returns the first match along with
// the detector's name.
func (r *Registry) Detect(ctx context.Context, t *Target) (*Result, string) {
	for _, d := range r.Detectors() {
		if res, ok := d.Detect(ctx, t); ok && res != nil {
			return res, d.Name()
		}
	}
	return nil, ""
}

// Detectors returns the registered detectors in evaluation order
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Detector(nil), r.detectors...)
}
