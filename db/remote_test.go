package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw        string
		kind       locationKind
		path       string
		bucket     string
		compressed bool
	}{
		{"s3://feeds/2024/01/feed.json", s3Location, "2024/01/feed.json", "feeds", false},
		{"S3://feeds/feed.json.xz", s3Location, "feed.json.xz", "feeds", true},
		{"https://example.com/feed.json", httpLocation, "https://example.com/feed.json", "", false},
		{"http://example.com/feed.json", httpLocation, "http://example.com/feed.json", "", false},
		{"file:///tmp/feed.json", localLocation, "/tmp/feed.json", "", false},
		{"/tmp/feed.json", localLocation, "/tmp/feed.json", "", false},
		{"feed.json.XZ", localLocation, "feed.json.XZ", "", true},
	}

	for _, tt := range tests {
		loc, err := ParseLocation(tt.raw)
		if err != nil {
			t.Errorf("ParseLocation(%q) failed: %v", tt.raw, err)
			continue
		}
		if loc.kind != tt.kind || loc.path != tt.path || loc.bucket != tt.bucket || loc.compressed != tt.compressed {
			t.Errorf("ParseLocation(%q) = %+v", tt.raw, loc)
		}
		if loc.String() != tt.raw {
			t.Errorf("Expected String() to return %q, got %q", tt.raw, loc.String())
		}
	}

	for _, raw := range []string{"s3://feeds", "s3://feeds/", "ftp://host/feed.json"} {
		if _, err := ParseLocation(raw); err == nil {
			t.Errorf("Expected ParseLocation(%q) to fail", raw)
		}
	}
}

func TestWriteReadFeed(t *testing.T) {
	ctx := context.Background()
	wire, err := op.Encode(op.Feed{op.NewInsert("t", core.Row{"id": 1, "text": "a"})})
	if err != nil {
		t.Fatalf("Failed to encode feed: %v", err)
	}

	for _, name := range []string{"feed.json", "feed.json.xz"} {
		t.Run(name, func(t *testing.T) {
			location := filepath.Join(t.TempDir(), name)
			if err := WriteFeed(ctx, location, wire, nil); err != nil {
				t.Fatalf("Failed to write feed: %v", err)
			}

			read, err := ReadFeed(ctx, location, nil)
			if err != nil {
				t.Fatalf("Failed to read feed: %v", err)
			}
			if read != wire {
				t.Errorf("Expected %s, got %s", wire, read)
			}

			if name == "feed.json.xz" {
				raw, err := os.ReadFile(location)
				if err != nil {
					t.Fatalf("Failed to read file: %v", err)
				}
				if string(raw) == wire {
					t.Error("Expected compressed content on disk")
				}
			}
		})
	}
}

func TestReadFeedFileScheme(t *testing.T) {
	location := filepath.Join(t.TempDir(), "feed.json")
	if err := os.WriteFile(location, []byte(`{"bassfeed": []}`), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	wire, err := ReadFeed(context.Background(), "file://"+location, nil)
	if err != nil {
		t.Fatalf("Failed to read feed: %v", err)
	}
	if wire != `{"bassfeed": []}` {
		t.Errorf("Unexpected wire %s", wire)
	}
}

func TestReadFeedHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"bassfeed": [{"operation": "drop", "table": "t"}]}`)
	}))
	defer server.Close()

	engine := setupTestEngine(t)
	report, err := engine.ApplyFeedFrom(context.Background(), server.URL+"/feed.json", ContinueOnError)
	if err != nil {
		t.Fatalf("Failed to apply remote feed: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Expected drop to succeed: %v", err)
	}

	if _, err := ReadFeed(context.Background(), server.URL+"/missing.json", nil); err == nil {
		t.Error("Expected error for missing remote feed")
	}
}

func TestWriteFeedRefusesHTTP(t *testing.T) {
	err := WriteFeed(context.Background(), "https://example.com/feed.json", "{}", nil)
	if !errors.Is(err, errReadOnlyLocation) {
		t.Errorf("Expected errReadOnlyLocation, got %v", err)
	}
}

func TestPublishFeed(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "snapshot.json.xz")

	if _, err := engine.Insert(ctx, "t", core.Row{"id": 1, "text": "a"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	feed, err := engine.Snapshot(ctx, "t")
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	if err := engine.PublishFeed(ctx, feed, location); err != nil {
		t.Fatalf("Failed to publish feed: %v", err)
	}

	replica := newTestEngine(t, Options{})
	report, err := replica.ApplyFeedFrom(ctx, location, Atomic)
	if err != nil {
		t.Fatalf("Failed to apply published feed: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Expected published feed to apply: %v", err)
	}
	if rows := selectAll(t, replica, "t"); len(rows) != 1 || rows[0]["text"] != "a" {
		t.Errorf("Unexpected replica rows %v", rows)
	}
}
