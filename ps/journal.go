package ps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
)

const gitDir = ".git"

var (
	ErrNotInitialized = errors.New("journal not initialized")
	ErrEntryNotFound  = errors.New("journal entry not found")
)

// Journal records applied feeds in a git repository, one commit per feed.
type Journal struct {
	repo *git.Repository
	mu   sync.RWMutex
	// inMemory journals have no checked out worktree to keep in sync.
	inMemory bool
}

// IsInitialized returns true if the journal has a valid repository
func (j *Journal) IsInitialized() bool {
	return j != nil && j.repo != nil
}

func (j *Journal) ensureInitialized() error {
	if !j.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// Open returns the journal kept in dir. An empty dir gives an in-memory
// journal. A cloneURL seeds a new journal from a remote; it is ignored
// when dir already holds a repository.
func Open(dir, cloneURL string) (*Journal, error) {
	if dir == "" {
		return open(memory.NewStorage(), memfs.New(), cloneURL, true)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	worktree := osfs.New(dir)
	dotGit, err := worktree.Chroot(gitDir)
	if err != nil {
		return nil, err
	}
	storer := filesystem.NewStorageWithOptions(dotGit, cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	if _, err := os.Stat(filepath.Join(dir, gitDir)); err == nil {
		repo, err := git.Open(storer, worktree)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal in %s: %w", dir, err)
		}
		return &Journal{repo: repo}, nil
	}
	return open(storer, worktree, cloneURL, false)
}

func open(storer storage.Storer, worktree billy.Filesystem, cloneURL string, inMemory bool) (*Journal, error) {
	var (
		repo *git.Repository
		err  error
	)
	if cloneURL != "" {
		repo, err = git.Clone(storer, worktree, &git.CloneOptions{URL: cloneURL})
	} else {
		repo, err = git.Init(storer, git.WithWorkTree(worktree))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	return &Journal{repo: repo, inMemory: inMemory}, nil
}

func NewMemoryJournal() (*Journal, error) {
	return Open("", "")
}
