package api

import (
	"sync"
	"time"

	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

// fakeSource is a StateSource backed by fixed snapshots.
type fakeSource struct {
	mu        sync.Mutex
	snaps     []monitor.Snapshot
	observers map[monitor.Observer]struct{}
}

func newFakeSource(snaps ...monitor.Snapshot) *fakeSource {
	return &fakeSource{snaps: snaps, observers: make(map[monitor.Observer]struct{})}
}

func (f *fakeSource) Snapshot(kind mce.Kind) (monitor.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snaps {
		if s.Kind == kind {
			return s, true
		}
	}
	return monitor.Snapshot{}, false
}

func (f *fakeSource) Snapshots() []monitor.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]monitor.Snapshot(nil), f.snaps...)
}

func (f *fakeSource) AllValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snaps {
		if !s.Valid {
			return false
		}
	}
	return true
}

func (f *fakeSource) Subscribe(o monitor.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers[o] = struct{}{}
}

func (f *fakeSource) Unsubscribe(o monitor.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers, o)
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeSource) emit(e monitor.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for o := range f.observers {
		o.OnEvent(e)
	}
}

func batterySnapshot(level int, valid bool) monitor.Snapshot {
	return monitor.Snapshot{
		Kind:  mce.KindBattery,
		Valid: valid,
		Fields: monitor.Fields{
			{Field: mce.FieldLevel, Value: level},
			{Field: mce.FieldStatus, Value: mce.BatteryOK},
		},
		Updated: time.Unix(1700000000, 0).UTC(),
	}
}

func displaySnapshot(state mce.DisplayState) monitor.Snapshot {
	return monitor.Snapshot{
		Kind:    mce.KindDisplay,
		Valid:   true,
		Fields:  monitor.Fields{{Field: mce.FieldState, Value: state}},
		Updated: time.Unix(1700000000, 0).UTC(),
	}
}
