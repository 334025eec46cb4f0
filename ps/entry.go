package ps

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
	"github.com/google/uuid"
)

const (
	feedDir    = "feeds"
	feedSuffix = ".json"
	metaSuffix = ".meta.json"
)

// Entry describes one applied feed.
type Entry struct {
	Id         string    `json:"id"`
	Seq        int       `json:"seq"`
	Digest     string    `json:"digest"`
	Operations int       `json:"operations"`
	Failed     int       `json:"failed"`
	Policy     string    `json:"policy"`
	RolledBack bool      `json:"rolled_back"`
	AppliedAt  time.Time `json:"applied_at"`
}

func (e Entry) baseName() string {
	return fmt.Sprintf("%06d-%s", e.Seq, e.Id)
}

// FeedPath is the repository path of the entry's wire text.
func (e Entry) FeedPath() string {
	return path.Join(feedDir, e.baseName()+feedSuffix)
}

// MetaPath is the repository path of the entry's metadata.
func (e Entry) MetaPath() string {
	return path.Join(feedDir, e.baseName()+metaSuffix)
}

func (e Entry) commitMessage() string {
	return fmt.Sprintf("Applied feed %s: %d operation(s), %d failed", e.Id, e.Operations, e.Failed)
}

// Append records wire and its metadata in one commit. Id, Seq, Digest and
// AppliedAt are filled in when empty.
func (j *Journal) Append(wire string, entry Entry, identity core.Identity) (Entry, Transaction, error) {
	if err := j.ensureInitialized(); err != nil {
		return Entry{}, Transaction{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := j.entries()
	if err != nil {
		return Entry{}, Transaction{}, err
	}

	entry.Seq = 1
	if len(existing) > 0 {
		entry.Seq = existing[len(existing)-1].Seq + 1
	}
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	if entry.Digest == "" {
		entry.Digest = op.Digest(wire)
	}
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now().UTC()
	}

	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Entry{}, Transaction{}, fmt.Errorf("failed to encode entry: %w", err)
	}

	txn, err := j.commitFiles(map[string][]byte{
		entry.FeedPath(): []byte(wire),
		entry.MetaPath(): meta,
	}, identity, entry.commitMessage())
	if err != nil {
		return Entry{}, Transaction{}, err
	}

	return entry, txn, nil
}

// Entries returns every journaled feed in application order.
func (j *Journal) Entries() ([]Entry, error) {
	if err := j.ensureInitialized(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.entries()
}

func (j *Journal) entries() ([]Entry, error) {
	names, err := j.listFiles(feedDir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, name := range names {
		if !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		data, err := j.readFile(path.Join(feedDir, name))
		if err != nil {
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(a, b int) bool { return entries[a].Seq < entries[b].Seq })
	return entries, nil
}

// Lookup finds an entry by id, id prefix or sequence number.
func (j *Journal) Lookup(ref string) (Entry, error) {
	entries, err := j.Entries()
	if err != nil {
		return Entry{}, err
	}

	seq, seqErr := strconv.Atoi(ref)
	for _, entry := range entries {
		if entry.Id == ref || (seqErr == nil && entry.Seq == seq) {
			return entry, nil
		}
	}

	var match []Entry
	for _, entry := range entries {
		if ref != "" && strings.HasPrefix(entry.Id, ref) {
			match = append(match, entry)
		}
	}
	if len(match) == 1 {
		return match[0], nil
	}
	if len(match) > 1 {
		return Entry{}, fmt.Errorf("ambiguous entry reference %q", ref)
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, ref)
}

// Feed returns the wire text recorded for entry.
func (j *Journal) Feed(entry Entry) (string, error) {
	if err := j.ensureInitialized(); err != nil {
		return "", err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	data, err := j.readFile(entry.FeedPath())
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, entry.Id)
	}
	return string(data), nil
}

// HasDigest reports whether a feed with this digest has been journaled.
func (j *Journal) HasDigest(digest string) (bool, error) {
	entries, err := j.Entries()
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Digest == digest {
			return true, nil
		}
	}
	return false, nil
}
