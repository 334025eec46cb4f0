package ps

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
)

const (
	wireA = `{"bassfeed":[{"operation":"drop","table":"a"}]}`
	wireB = `{"bassfeed":[{"operation":"drop","table":"b"}]}`
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := NewMemoryJournal()
	if err != nil {
		t.Fatalf("Failed to create memory journal: %v", err)
	}
	return journal
}

func TestNewMemoryJournal(t *testing.T) {
	journal := setupTestJournal(t)

	if !journal.IsInitialized() {
		t.Error("Expected journal to be initialized")
	}

	entries, err := journal.Entries()
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty journal, got %d entries", len(entries))
	}
}

func TestJournalNotInitialized(t *testing.T) {
	var journal *Journal

	if journal.IsInitialized() {
		t.Error("Expected nil journal to be uninitialized")
	}
	if _, err := journal.Entries(); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestAppendAndRead(t *testing.T) {
	journal := setupTestJournal(t)

	first, txn, err := journal.Append(wireA, Entry{Operations: 1, Policy: "continue"}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if txn.Id == "" {
		t.Error("Expected transaction ID to be set")
	}
	if first.Seq != 1 || first.Id == "" {
		t.Errorf("Unexpected entry: %+v", first)
	}
	if first.Digest != op.Digest(wireA) {
		t.Errorf("Expected digest of wire text, got %s", first.Digest)
	}

	second, _, err := journal.Append(wireB, Entry{Operations: 1, Failed: 1, Policy: "atomic", RolledBack: true}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("Expected seq 2, got %d", second.Seq)
	}

	entries, err := journal.Entries()
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Id != first.Id || entries[1].Id != second.Id {
		t.Fatalf("Unexpected entries: %+v", entries)
	}
	if !entries[1].RolledBack || entries[1].Policy != "atomic" {
		t.Errorf("Metadata not preserved: %+v", entries[1])
	}

	wire, err := journal.Feed(entries[0])
	if err != nil {
		t.Fatalf("Failed to read feed: %v", err)
	}
	if wire != wireA {
		t.Errorf("Expected %s, got %s", wireA, wire)
	}
}

func TestAppendCommitMessage(t *testing.T) {
	journal := setupTestJournal(t)

	entry, _, err := journal.Append(wireA, Entry{Operations: 3, Failed: 1}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	latest := journal.LatestTransaction()
	expected := "Applied feed " + entry.Id + ": 3 operation(s), 1 failed"
	if latest.Message != expected {
		t.Errorf("Expected message %q, got %q", expected, latest.Message)
	}
	if latest.Author != "test <test@test.com>" {
		t.Errorf("Unexpected author %q", latest.Author)
	}

	txns, err := journal.TransactionsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to read transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("Expected 1 transaction, got %d", len(txns))
	}
}

func TestHasDigest(t *testing.T) {
	journal := setupTestJournal(t)

	if _, _, err := journal.Append(wireA, Entry{}, testIdentity); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	found, err := journal.HasDigest(op.Digest(wireA))
	if err != nil || !found {
		t.Errorf("Expected digest of wireA to be journaled, got %v, %v", found, err)
	}
	found, err = journal.HasDigest(op.Digest(wireB))
	if err != nil || found {
		t.Errorf("Expected digest of wireB to be absent, got %v, %v", found, err)
	}
}

func TestLookup(t *testing.T) {
	journal := setupTestJournal(t)

	entry, _, err := journal.Append(wireA, Entry{}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	for _, ref := range []string{entry.Id, entry.Id[:8], "1"} {
		got, err := journal.Lookup(ref)
		if err != nil {
			t.Errorf("Failed to look up %q: %v", ref, err)
			continue
		}
		if got.Id != entry.Id {
			t.Errorf("Lookup(%q): expected %s, got %s", ref, entry.Id, got.Id)
		}
	}

	if _, err := journal.Lookup("nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound, got %v", err)
	}
}

func TestFileJournalReopen(t *testing.T) {
	dir := t.TempDir()

	journal, err := Open(dir, "")
	if err != nil {
		t.Fatalf("Failed to create file journal: %v", err)
	}
	if _, _, err := journal.Append(wireA, Entry{Operations: 1}, testIdentity); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if _, err := os.Stat(dir + "/feeds"); err != nil {
		t.Errorf("Expected worktree to contain feeds: %v", err)
	}

	reopened, err := Open(dir, "")
	if err != nil {
		t.Fatalf("Failed to reopen journal: %v", err)
	}
	entries, err := reopened.Entries()
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after reopen, got %d", len(entries))
	}
}

func TestPushAndClone(t *testing.T) {
	source, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Failed to create source journal: %v", err)
	}
	entry, _, err := source.Append(wireA, Entry{Operations: 1}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	bareDir := t.TempDir()
	bareStorer := filesystem.NewStorage(osfs.New(bareDir), cache.NewObjectLRUDefault())
	if _, err := git.Init(bareStorer); err != nil {
		t.Fatalf("Failed to init bare repo: %v", err)
	}

	if err := source.AddRemote("origin", bareDir); err != nil {
		t.Fatalf("Failed to add remote: %v", err)
	}
	remotes, err := source.ListRemotes()
	if err != nil || len(remotes) != 1 || remotes[0].Name != "origin" {
		t.Fatalf("Unexpected remotes %v, %v", remotes, err)
	}
	if err := source.Push(SyncOptions{}); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	// A second push is a no-op, not an error.
	if err := source.Push(SyncOptions{Remote: "origin"}); err != nil {
		t.Errorf("Expected up-to-date push to succeed, got %v", err)
	}

	clone, err := Open(t.TempDir(), bareDir)
	if err != nil {
		t.Fatalf("Failed to clone journal: %v", err)
	}
	wire, err := clone.Feed(entry)
	if err != nil {
		t.Fatalf("Failed to read cloned feed: %v", err)
	}
	if !strings.Contains(wire, `"table":"a"`) {
		t.Errorf("Unexpected cloned feed %s", wire)
	}
}

func TestPullReturnsArrivedEntries(t *testing.T) {
	source, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Failed to create source journal: %v", err)
	}
	if _, _, err := source.Append(wireA, Entry{Operations: 1}, testIdentity); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	bareDir := t.TempDir()
	bareStorer := filesystem.NewStorage(osfs.New(bareDir), cache.NewObjectLRUDefault())
	if _, err := git.Init(bareStorer); err != nil {
		t.Fatalf("Failed to init bare repo: %v", err)
	}
	if err := source.AddRemote(DefaultRemote, bareDir); err != nil {
		t.Fatalf("Failed to add remote: %v", err)
	}
	if err := source.Push(SyncOptions{}); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}

	replica, err := Open(t.TempDir(), bareDir)
	if err != nil {
		t.Fatalf("Failed to clone journal: %v", err)
	}
	arrived, err := replica.Pull(SyncOptions{})
	if err != nil || len(arrived) != 0 {
		t.Fatalf("Expected nothing new, got %v, %v", arrived, err)
	}

	second, _, err := source.Append(wireB, Entry{Operations: 1}, testIdentity)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := source.Push(SyncOptions{}); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}

	arrived, err = replica.Pull(SyncOptions{})
	if err != nil {
		t.Fatalf("Failed to pull: %v", err)
	}
	if len(arrived) != 1 || arrived[0].Id != second.Id {
		t.Errorf("Expected only the second entry, got %+v", arrived)
	}
}

func TestRemoteAuthMethod(t *testing.T) {
	method, err := (&RemoteAuth{Token: "abc"}).method()
	if err != nil || method == nil {
		t.Errorf("Expected token auth method, got %v, %v", method, err)
	}

	method, err = (&RemoteAuth{Username: "bass", Password: "pw"}).method()
	if err != nil || method == nil {
		t.Errorf("Expected basic auth method, got %v, %v", method, err)
	}

	method, err = (*RemoteAuth)(nil).method()
	if err != nil || method != nil {
		t.Errorf("Expected no auth method, got %v, %v", method, err)
	}

	if _, err := (&RemoteAuth{KeyPath: t.TempDir() + "/missing"}).method(); err == nil {
		t.Error("Expected error for a missing key file")
	}
}
