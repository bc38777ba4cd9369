package widget

import (
	"sync"
)

// FakeRow is one scripted row of a list component.
type FakeRow struct {
	// Text is the row's renderer text (child id 0).
	Text string
	// Children maps child text node ids to their rendered text.
	Children map[int]string
}

// FakeWindow is one scripted window of a Fake probe.
type FakeWindow struct {
	Visible bool
	Loaded  bool
	Lists   map[int][]FakeRow
}

// FiredEvent records one synthetic event injected through a Fake.
type FiredEvent struct {
	Window string
	Values []Value
}

// Fake is an in-memory Probe whose windows, visibility and list contents are
// scripted by the caller. It records every injected event so drivers can be
// exercised without a real host.
type Fake struct {
	mu      sync.Mutex
	windows map[string]*FakeWindow
	events  []FiredEvent
	closed  []string
}

func NewFake() *Fake {
	return &Fake{windows: map[string]*FakeWindow{}}
}

// Show creates (or re-shows) a window in the visible and loaded state and
// returns it for further scripting.
func (f *Fake) Show(name string) *FakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[name]
	if !ok {
		w = &FakeWindow{Lists: map[int][]FakeRow{}}
		f.windows[name] = w
	}
	w.Visible = true
	w.Loaded = true
	return w
}

// ShowPartial creates a window that exists and is visible but not yet fully
// loaded.
func (f *Fake) ShowPartial(name string) *FakeWindow {
	w := f.Show(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Loaded = false
	return w
}

func (f *Fake) Hide(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[name]; ok {
		w.Visible = false
	}
}

// Remove destroys the window entirely, as if the host deallocated it.
func (f *Fake) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, name)
}

// SetList replaces the rows of the list component at nodeID.
func (f *Fake) SetList(name string, nodeID int, rows ...FakeRow) {
	w := f.Show(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Lists[nodeID] = rows
}

// Events returns a copy of all recorded events, oldest first.
func (f *Fake) Events() []FiredEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FiredEvent, len(f.events))
	copy(out, f.events)
	return out
}

// EventsFor returns the recorded events fired into the named window.
func (f *Fake) EventsFor(name string) []FiredEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FiredEvent
	for _, e := range f.events {
		if e.Window == name {
			out = append(out, e)
		}
	}
	return out
}

// ClearEvents drops the recorded event log.
func (f *Fake) ClearEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// Closed returns the windows that received a Close call, in order.
func (f *Fake) Closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closed))
	copy(out, f.closed)
	return out
}

func (f *Fake) Find(name string) (Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[name]; !ok {
		return "", false
	}
	return Handle(name), true
}

func (f *Fake) IsVisible(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[string(h)]
	return ok && w.Visible
}

func (f *Fake) IsLoaded(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[string(h)]
	return ok && w.Loaded
}

func (f *Fake) ListLength(h Handle, nodeID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[string(h)]
	if !ok {
		return 0
	}
	return len(w.Lists[nodeID])
}

func (f *Fake) ListText(h Handle, nodeID, index, childID int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[string(h)]
	if !ok {
		return ""
	}
	rows := w.Lists[nodeID]
	if index < 0 || index >= len(rows) {
		return ""
	}
	if childID == 0 {
		return rows[index].Text
	}
	return rows[index].Children[childID]
}

func (f *Fake) FireEvent(h Handle, values ...Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[string(h)]; !ok {
		return
	}
	vals := make([]Value, len(values))
	copy(vals, values)
	f.events = append(f.events, FiredEvent{Window: string(h), Values: vals})
}

func (f *Fake) Close(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[string(h)]
	if !ok {
		return
	}
	w.Visible = false
	f.closed = append(f.closed, string(h))
}
