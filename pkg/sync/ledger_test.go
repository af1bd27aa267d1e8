package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerLatestWins(t *testing.T) {
	ledger := NewLedger()
	ledger.Record("notes.txt", Add)
	ledger.Record("notes.txt", DeleteFile)

	assert.Equal(t, map[RelPath]ChangeKind{"notes.txt": DeleteFile}, ledger.Snapshot())
	assert.Equal(t, 1, ledger.Len())

	kind, ok := ledger.Snapshot()["notes.txt"]
	assert.True(t, ok)
	assert.Equal(t, DeleteFile, kind)
}

func TestLedgerResolve(t *testing.T) {
	ledger := NewLedger()
	ledger.Record("a", Add)
	ledger.Record("b", Modify)

	changes := ledger.Changes()
	assert.Len(t, changes, 2)
	assert.Equal(t, RelPath("a"), changes[0].Path)
	assert.Equal(t, RelPath("b"), changes[1].Path)

	// "b" is modified again after it was read, so resolving the old change
	// must keep the new one.
	ledger.Record("b", Modify)
	assert.True(t, ledger.Resolve(changes[0]))
	assert.False(t, ledger.Resolve(changes[1]))
	assert.Equal(t, map[RelPath]ChangeKind{"b": Modify}, ledger.Snapshot())

	// Resolving twice is a no-op.
	assert.False(t, ledger.Resolve(changes[0]))
}

func TestLedgerClear(t *testing.T) {
	ledger := NewLedger()
	ledger.Record("a", AddDirectory)
	ledger.Record("a/b", Add)
	seq := ledger.Seq()

	ledger.Resolve(ledger.Changes()[0])
	assert.Equal(t, map[RelPath]ChangeKind{"a/b": Add}, ledger.Snapshot())

	ledger.Clear()
	assert.Equal(t, 0, ledger.Len())
	assert.Empty(t, ledger.Changes())
	assert.Equal(t, seq, ledger.Seq())
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "add", Add.String())
	assert.Equal(t, "deleteDirectory", DeleteDirectory.String())
	assert.Equal(t, "unknown", ChangeKind(42).String())
	assert.True(t, DeleteFile.IsDelete())
	assert.False(t, AddDirectory.IsDelete())
}
