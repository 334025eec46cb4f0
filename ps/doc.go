// Package ps provides the feed journal for DataBass.
//
// The journal is a Git repository, written with go-git. Every applied
// feed becomes one commit holding the wire text and a small metadata
// file, so the history of a store can be inspected, replayed elsewhere
// or shared through an ordinary Git remote.
//
// # Memory Journal
//
// For testing or ephemeral engines:
//
//	journal, err := ps.NewMemoryJournal()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Journal
//
//	journal, err := ps.Open("/path/to/journal", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Layout
//
//	feeds/000001-<uuid>.json       wire text
//	feeds/000001-<uuid>.meta.json  Entry as JSON
package ps
