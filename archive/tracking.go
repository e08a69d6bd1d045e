package archive

import (
	"fmt"
	"sync"
)

// TrackedSource is the per-source bookkeeping record the glossary's
// "Tracking" entry describes: the set of filekeys and index rows
// attributable to one (source, version) across every distribution where
// tracking is enabled.
type TrackedSource struct {
	Source   string
	Version  string
	Filekeys []string
}

// Tracking implements tracking.init/summon/add/finish for one distribution.
// It is grounded on incoming.c's trackingdata_summon/trackedpackage_*/
// trackingdata_finish call sequence in install_into.
type Tracking struct {
	Distribution string
	Enabled      bool

	mu      sync.Mutex
	sources map[string]*TrackedSource // keyed by "source|version"
}

// NewTracking implements tracking.init(dist). A disabled Tracking is a
// harmless no-op target for Summon/Add/Finish, so callers need not branch
// on whether the distribution enables tracking.
func NewTracking(distribution string, enabled bool) *Tracking {
	return &Tracking{
		Distribution: distribution,
		Enabled:      enabled,
		sources:      make(map[string]*TrackedSource),
	}
}

// Summon implements tracking.summon(source, version): returns the
// (creating if absent) tracked record for one source/version pair.
func (t *Tracking) Summon(source, version string) *TrackedSource {
	if !t.Enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := source + "|" + version
	ts, ok := t.sources[key]
	if !ok {
		ts = &TrackedSource{Source: source, Version: version}
		t.sources[key] = ts
	}
	return ts
}

// Add implements tracking.add(...): records filekeys as attributable to the
// given tracked source. A nil record (tracking disabled, or Summon never
// called) is accepted as a no-op so callers can unconditionally pass
// Tracking.Summon's result through.
func (t *Tracking) Add(ts *TrackedSource, filekeys []string) error {
	if ts == nil {
		return nil
	}
	if !t.Enabled {
		return fmt.Errorf("tracking.add called on disabled tracking for %s", t.Distribution)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ts.Filekeys = append(ts.Filekeys, filekeys...)
	return nil
}

// Finish implements tracking.finish(): a no-op placeholder for backends
// that batch writes; kept as an explicit call so the core's open/commit
// discipline (§5) has a symmetric release point to call on every exit path.
func (t *Tracking) Finish() error {
	return nil
}

// Sources returns a snapshot of every tracked source/version pair, for
// tests and diagnostics.
func (t *Tracking) Sources() []*TrackedSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*TrackedSource, 0, len(t.sources))
	for _, ts := range t.sources {
		out = append(out, ts)
	}
	return out
}
