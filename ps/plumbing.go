package ps

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/core"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// createBlob creates a blob object directly in the object store without filesystem I/O
func (j *Journal) createBlob(data []byte) (plumbing.Hash, error) {
	obj := j.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	hash, err := j.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}

	return hash, nil
}

// getCurrentTree returns the tree hash from the current HEAD commit.
// Returns ZeroHash if repository has no commits yet.
func (j *Journal) getCurrentTree() (plumbing.Hash, error) {
	headRef, err := j.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, nil
	}

	commit, err := j.repo.CommitObject(headRef.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get head commit: %w", err)
	}

	return commit.TreeHash, nil
}

func (j *Journal) getTreeEntries(treeHash plumbing.Hash) (map[string]object.TreeEntry, error) {
	entries := make(map[string]object.TreeEntry)

	if treeHash == plumbing.ZeroHash {
		return entries, nil
	}

	tree, err := object.GetTree(j.repo.Storer, treeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	for _, entry := range tree.Entries {
		entries[entry.Name] = entry
	}

	return entries, nil
}

func (j *Journal) buildTreeFromEntries(entries []object.TreeEntry) (plumbing.Hash, error) {
	// Git orders directories as if they had a trailing slash
	sort.Slice(entries, func(a, b int) bool {
		nameA := entries[a].Name
		nameB := entries[b].Name
		if entries[a].Mode == filemode.Dir {
			nameA += "/"
		}
		if entries[b].Mode == filemode.Dir {
			nameB += "/"
		}
		return nameA < nameB
	})

	tree := &object.Tree{Entries: entries}

	obj := j.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}

	hash, err := j.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}

	return hash, nil
}

// treeChange is a single blob to place in a tree
type treeChange struct {
	Path     string
	BlobHash plumbing.Hash
}

// batchUpdateTree applies several changes, rebuilding each touched
// directory once. Returns the new root tree hash.
func (j *Journal) batchUpdateTree(rootTreeHash plumbing.Hash, changes []treeChange) (plumbing.Hash, error) {
	if len(changes) == 0 {
		return rootTreeHash, nil
	}

	grouped := make(map[string][]treeChange)
	var leafChanges []treeChange

	for _, change := range changes {
		parts := strings.SplitN(change.Path, "/", 2)
		if len(parts) == 1 {
			leafChanges = append(leafChanges, change)
		} else {
			grouped[parts[0]] = append(grouped[parts[0]], treeChange{
				Path:     parts[1],
				BlobHash: change.BlobHash,
			})
		}
	}

	entries, err := j.getTreeEntries(rootTreeHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	for _, change := range leafChanges {
		entries[change.Path] = object.TreeEntry{
			Name: change.Path,
			Mode: filemode.Regular,
			Hash: change.BlobHash,
		}
	}

	for dir, subChanges := range grouped {
		subTreeHash := plumbing.ZeroHash
		if existing, ok := entries[dir]; ok && existing.Mode == filemode.Dir {
			subTreeHash = existing.Hash
		}

		newSubTreeHash, err := j.batchUpdateTree(subTreeHash, subChanges)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		entries[dir] = object.TreeEntry{
			Name: dir,
			Mode: filemode.Dir,
			Hash: newSubTreeHash,
		}
	}

	entrySlice := make([]object.TreeEntry, 0, len(entries))
	for _, entry := range entries {
		entrySlice = append(entrySlice, entry)
	}

	return j.buildTreeFromEntries(entrySlice)
}

// createCommitDirect creates a commit object directly without using worktree
func (j *Journal) createCommitDirect(treeHash plumbing.Hash, identity core.Identity, message string) (Transaction, error) {
	var parentHashes []plumbing.Hash
	headRef, err := j.repo.Head()
	if err == nil {
		parentHashes = []plumbing.Hash{headRef.Hash()}
	}

	sig := object.Signature{
		Name:  identity.Name,
		Email: identity.Email,
		When:  time.Now(),
	}

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}

	obj := j.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return Transaction{}, fmt.Errorf("failed to encode commit: %w", err)
	}

	commitHash, err := j.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to store commit: %w", err)
	}

	branchName := plumbing.Master
	if headRef != nil && headRef.Name().IsBranch() {
		branchName = headRef.Name()
	}

	ref := plumbing.NewHashReference(branchName, commitHash)
	if err := j.repo.Storer.SetReference(ref); err != nil {
		return Transaction{}, fmt.Errorf("failed to update HEAD: %w", err)
	}

	return Transaction{
		Id:      commitHash.String(),
		When:    sig.When,
		Author:  identity.String(),
		Message: message,
	}, nil
}

// commitFiles writes every file into a single commit.
func (j *Journal) commitFiles(files map[string][]byte, identity core.Identity, message string) (Transaction, error) {
	currentTree, err := j.getCurrentTree()
	if err != nil {
		return Transaction{}, err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	changes := make([]treeChange, 0, len(files))
	for _, p := range paths {
		blobHash, err := j.createBlob(files[p])
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to create blob for %s: %w", p, err)
		}
		changes = append(changes, treeChange{Path: p, BlobHash: blobHash})
	}

	newTree, err := j.batchUpdateTree(currentTree, changes)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to update tree: %w", err)
	}

	txn, err := j.createCommitDirect(newTree, identity, message)
	if err != nil {
		return Transaction{}, err
	}

	if err := j.syncWorktree(); err != nil {
		return Transaction{}, fmt.Errorf("failed to sync worktree: %w", err)
	}

	return txn, nil
}

// syncWorktree updates the worktree filesystem to match HEAD.
// Memory journals read from the tree directly and skip it.
func (j *Journal) syncWorktree() error {
	if j.inMemory {
		return nil
	}

	wt, err := j.repo.Worktree()
	if err != nil {
		return err
	}

	headRef, err := j.repo.Head()
	if err != nil {
		return err
	}

	return wt.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: headRef.Hash(),
	})
}

func (j *Journal) headTree() (*object.Tree, error) {
	headRef, err := j.repo.Head()
	if err != nil {
		return nil, nil
	}

	commit, err := j.repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

// readFile reads a file directly from the HEAD tree
func (j *Journal) readFile(filePath string) ([]byte, error) {
	tree, err := j.headTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("no commits yet")
	}

	file, err := tree.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read contents: %w", err)
	}

	return []byte(content), nil
}

// listFiles lists the file names in a directory of the HEAD tree
func (j *Journal) listFiles(dirPath string) ([]string, error) {
	tree, err := j.headTree()
	if err != nil || tree == nil {
		return nil, err
	}

	dir, err := tree.Tree(dirPath)
	if err != nil {
		// Directory doesn't exist = empty
		return nil, nil
	}

	var names []string
	for _, entry := range dir.Entries {
		if entry.Mode != filemode.Dir {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}
