package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
	"github.com/LordWolfenstein/databass/ps"
	log "github.com/sirupsen/logrus"
)

// Policy decides what a failing feed operation does to the rest of the feed.
type Policy int

const (
	// ContinueOnError records the failure and moves on. Each operation
	// commits on its own.
	ContinueOnError Policy = iota
	// Atomic runs the feed in one transaction and rolls it back on the first
	// failure. MySQL commits DDL implicitly, so there only DML is undone.
	Atomic
)

func (policy Policy) String() string {
	if policy == Atomic {
		return "atomic"
	}
	return "continue"
}

func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "continue", "continue-on-error":
		return ContinueOnError, nil
	case "atomic":
		return Atomic, nil
	default:
		return ContinueOnError, fmt.Errorf("unknown policy: %s", name)
	}
}

// Outcome is what one feed operation produced.
type Outcome struct {
	Index  int
	Kind   op.Kind
	Table  string
	Result Result
	Err    error
}

func (outcome Outcome) OK() bool {
	return outcome.Err == nil
}

func (outcome Outcome) String() string {
	if outcome.Err != nil {
		return fmt.Sprintf("#%d %s %s: %v", outcome.Index, outcome.Kind, outcome.Table, outcome.Err)
	}
	return fmt.Sprintf("#%d %s %s: ok", outcome.Index, outcome.Kind, outcome.Table)
}

// Report lists the outcome of every operation that ran, in feed order.
type Report struct {
	Policy     Policy
	Outcomes   []Outcome
	RolledBack bool
	Digest     string
	// Duplicate is set when the feed was already journaled and was not replayed.
	Duplicate bool
	Entry     ps.Entry
}

// Err returns the first failure, or nil.
func (report *Report) Err() error {
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			return fmt.Errorf("operation %d (%s %s): %w", outcome.Index, outcome.Kind, outcome.Table, outcome.Err)
		}
	}
	return nil
}

func (report *Report) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

func (report *Report) Succeeded() []Outcome {
	var succeeded []Outcome
	for _, outcome := range report.Outcomes {
		if outcome.Err == nil {
			succeeded = append(succeeded, outcome)
		}
	}
	return succeeded
}

var errFeedAborted = errors.New("feed aborted")

// ApplyFeed replays feed in order under policy.
func (engine *Engine) ApplyFeed(ctx context.Context, feed op.Feed, policy Policy) (*Report, error) {
	wire, err := op.Encode(feed)
	if err != nil {
		return nil, err
	}
	return engine.apply(ctx, feed, wire, policy)
}

// ApplyWire decodes wire text and replays it under policy. A feed that fails
// to decode is rejected as a whole and nothing runs.
func (engine *Engine) ApplyWire(ctx context.Context, wire string, policy Policy) (*Report, error) {
	feed, err := op.Decode(wire)
	if err != nil {
		engine.log.WithError(err).Warn("feed rejected")
		return nil, err
	}
	return engine.apply(ctx, feed, wire, policy)
}

func (engine *Engine) apply(ctx context.Context, feed op.Feed, wire string, policy Policy) (*Report, error) {
	report := &Report{Policy: policy, Digest: op.Digest(wire)}
	logger := engine.log.WithFields(log.Fields{
		"digest":     report.Digest[:12],
		"operations": len(feed),
		"policy":     policy.String(),
	})

	journal := engine.options.Journal
	if journal != nil && engine.options.SkipDuplicates {
		seen, err := journal.HasDigest(report.Digest)
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
		if seen {
			logger.Info("feed already applied, skipping")
			report.Duplicate = true
			return report, nil
		}
	}

	switch policy {
	case Atomic:
		err := engine.inTx(ctx, func(tx *Engine) error {
			for i, operation := range feed {
				outcome := tx.applyOne(ctx, i, operation)
				report.Outcomes = append(report.Outcomes, outcome)
				if outcome.Err != nil {
					return errFeedAborted
				}
			}
			return nil
		})
		if err != nil {
			report.RolledBack = true
			if !errors.Is(err, errFeedAborted) {
				// The transaction itself failed to open or commit.
				report.Outcomes = append(report.Outcomes, Outcome{Index: len(report.Outcomes), Err: err})
			}
		}
	default:
		for i, operation := range feed {
			report.Outcomes = append(report.Outcomes, engine.applyOne(ctx, i, operation))
		}
	}

	failed := len(report.Failed())
	entry := logger.WithField("failed", failed)
	if report.RolledBack {
		entry.Warn("feed rolled back")
	} else if failed > 0 {
		entry.Warn("feed applied with failures")
	} else {
		entry.Info("feed applied")
	}

	if journal != nil {
		recorded, txn, err := journal.Append(wire, ps.Entry{
			Digest:     report.Digest,
			Operations: len(feed),
			Failed:     failed,
			Policy:     policy.String(),
			RolledBack: report.RolledBack,
		}, engine.identity)
		if err != nil {
			return report, fmt.Errorf("failed to journal feed: %w", err)
		}
		report.Entry = recorded
		logger.WithField("commit", txn.Id).Debug("feed journaled")
	}

	return report, nil
}

func (engine *Engine) applyOne(ctx context.Context, index int, operation op.Operation) Outcome {
	outcome := Outcome{Index: index, Kind: operation.Kind()}
	if tables := operation.Tables(); len(tables) > 0 {
		outcome.Table = strings.Join(tables, ",")
	}

	outcome.Result, outcome.Err = engine.Apply(ctx, operation)
	if outcome.Err != nil {
		engine.log.WithFields(log.Fields{
			"index": index,
			"kind":  outcome.Kind.String(),
			"table": outcome.Table,
			"error": core.KindOf(outcome.Err).String(),
		}).Debug(outcome.Err.Error())
	}
	return outcome
}
