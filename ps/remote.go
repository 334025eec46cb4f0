package ps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/go-git/go-git/v6/plumbing/transport/ssh"
)

const DefaultRemote = "origin"

// RemoteAuth holds credentials for a journal remote. The first populated
// method wins: Token, then KeyPath, then Username.
type RemoteAuth struct {
	Token      string
	KeyPath    string
	Passphrase string
	Username   string
	Password   string
}

func (auth *RemoteAuth) method() (transport.AuthMethod, error) {
	switch {
	case auth == nil:
		return nil, nil
	case auth.Token != "":
		// Hosts ignore the user name for token auth but require one.
		return &http.BasicAuth{Username: "git", Password: auth.Token}, nil
	case auth.KeyPath != "":
		keyPath := auth.KeyPath
		if keyPath == "~" || len(keyPath) > 1 && keyPath[:2] == "~/" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			keyPath = filepath.Join(home, keyPath[1:])
		}
		return ssh.NewPublicKeysFromFile("git", keyPath, auth.Passphrase)
	case auth.Username != "":
		return &http.BasicAuth{Username: auth.Username, Password: auth.Password}, nil
	default:
		return nil, nil
	}
}

// Remote is a configured journal remote.
type Remote struct {
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

// SyncOptions selects the remote and branch for Push and Pull. Empty fields
// mean the default remote and the current branch.
type SyncOptions struct {
	Remote string
	Branch string
	Auth   *RemoteAuth
}

func (opts SyncOptions) remote() string {
	if opts.Remote == "" {
		return DefaultRemote
	}
	return opts.Remote
}

func (j *Journal) AddRemote(name, url string) error {
	if err := j.ensureInitialized(); err != nil {
		return err
	}
	if _, err := j.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return fmt.Errorf("failed to add remote '%s': %w", name, err)
	}
	return nil
}

func (j *Journal) ListRemotes() ([]Remote, error) {
	if err := j.ensureInitialized(); err != nil {
		return nil, err
	}

	remotes, err := j.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	result := make([]Remote, len(remotes))
	for i, remote := range remotes {
		cfg := remote.Config()
		result[i] = Remote{Name: cfg.Name, URLs: cfg.URLs}
	}
	return result, nil
}

func (j *Journal) RemoveRemote(name string) error {
	if err := j.ensureInitialized(); err != nil {
		return err
	}
	if err := j.repo.DeleteRemote(name); err != nil {
		return fmt.Errorf("failed to remove remote '%s': %w", name, err)
	}
	return nil
}

// Push publishes the journal branch to a remote. An up to date remote is not an error.
func (j *Journal) Push(opts SyncOptions) error {
	if err := j.ensureInitialized(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	branch := opts.Branch
	if branch == "" {
		var err error
		if branch, err = j.currentBranch(); err != nil {
			return err
		}
	}
	auth, err := opts.Auth.method()
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	err = j.repo.Push(&git.PushOptions{
		RemoteName: opts.remote(),
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push to '%s': %w", opts.remote(), err)
	}
	return nil
}

// Pull fast-forwards the journal from a remote and returns the entries that
// arrived, in sequence order.
func (j *Journal) Pull(opts SyncOptions) ([]Entry, error) {
	if err := j.ensureInitialized(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	before, err := j.entries()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(before))
	for _, entry := range before {
		known[entry.Id] = true
	}

	wt, err := j.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := opts.Auth.method()
	if err != nil {
		return nil, fmt.Errorf("failed to configure auth: %w", err)
	}

	pull := &git.PullOptions{RemoteName: opts.remote(), Auth: auth}
	if opts.Branch != "" {
		pull.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	if err := wt.Pull(pull); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pull from '%s': %w", opts.remote(), err)
	}

	after, err := j.entries()
	if err != nil {
		return nil, err
	}
	var arrived []Entry
	for _, entry := range after {
		if !known[entry.Id] {
			arrived = append(arrived, entry)
		}
	}
	return arrived, nil
}

func (j *Journal) currentBranch() (string, error) {
	head, err := j.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash().String()[:7])
	}
	return head.Name().Short(), nil
}
