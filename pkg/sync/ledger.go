package sync

import (
	"sort"
	"sync"
)

// ChangeKind is the kind of pending change for a path.
type ChangeKind int

const (
	Add ChangeKind = iota
	AddDirectory
	Modify
	DeleteFile
	DeleteDirectory
)

var changeKindNames = []string{
	"add",
	"addDirectory",
	"modify",
	"deleteFile",
	"deleteDirectory",
}

func (k ChangeKind) String() string {
	if int(k) < 0 || int(k) >= len(changeKindNames) {
		return "unknown"
	}
	return changeKindNames[k]
}

// IsDelete returns whether the change removes the path from the server.
func (k ChangeKind) IsDelete() bool {
	return k == DeleteFile || k == DeleteDirectory
}

// Change is a pending change read from the ledger.
type Change struct {
	Path RelPath
	Kind ChangeKind

	// seq identifies the Record call that created the change, so that
	// Resolve can tell whether the path was recorded again since.
	seq uint64
}

// Ledger tracks the changes that haven't been applied to the server yet.
// Only the latest change for each path is kept. It's safe for concurrent
// use.
type Ledger struct {
	lock    sync.Mutex
	entries map[RelPath]Change
	seq     uint64
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: map[RelPath]Change{}}
}

// Record sets the pending change for p, replacing any earlier one.
func (l *Ledger) Record(p RelPath, kind ChangeKind) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.seq++
	l.entries[p] = Change{Path: p, Kind: kind, seq: l.seq}
}

// Resolve removes change from the ledger, unless its path was recorded again
// after change was read. It returns whether the change was removed.
func (l *Ledger) Resolve(change Change) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	curr, ok := l.entries[change.Path]
	if !ok || curr.seq != change.seq {
		return false
	}
	delete(l.entries, change.Path)
	return true
}

// Changes returns the pending changes sorted by path.
func (l *Ledger) Changes() []Change {
	l.lock.Lock()
	defer l.lock.Unlock()

	changes := make([]Change, 0, len(l.entries))
	for _, change := range l.entries {
		changes = append(changes, change)
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}

// Snapshot returns a copy of the pending changes.
func (l *Ledger) Snapshot() map[RelPath]ChangeKind {
	l.lock.Lock()
	defer l.lock.Unlock()

	snapshot := map[RelPath]ChangeKind{}
	for p, change := range l.entries {
		snapshot[p] = change.Kind
	}
	return snapshot
}

// Len returns the number of pending changes.
func (l *Ledger) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.entries)
}

// Seq increases every time a change is recorded.
func (l *Ledger) Seq() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.seq
}

// Clear drops all pending changes.
func (l *Ledger) Clear() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.entries = map[RelPath]Change{}
}
