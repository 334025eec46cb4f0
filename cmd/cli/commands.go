package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
	"github.com/LordWolfenstein/databass/ps"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errJournalDisabled = errors.New("journal is disabled (set journal.enabled or pass --journal-dir)")

// withCLI opens the store for a subcommand and closes it afterwards.
func withCLI(fn func(cmd *cobra.Command, cli *CLI, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cli, err := openCLI(cmd)
		if err != nil {
			return err
		}
		defer cli.Close()
		return fn(cmd, cli, args)
	}
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the store.",
	Args:  cobra.NoArgs,
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		return cli.showTables(cmd.Context())
	}),
}

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show the columns of a table.",
	Args:  cobra.ExactArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		if show, _ := cmd.Flags().GetBool("create"); show {
			return cli.showCreate(cmd.Context(), args[0])
		}
		return cli.describe(cmd.Context(), args[0])
	}),
}

var selectCmd = &cobra.Command{
	Use:   "select <table>",
	Short: "Read rows with a structured, schema-checked query.",
	Long: `Read rows with a structured, schema-checked query.

Conditions are column=value pairs and are always combined with AND.
A value of NULL matches missing values.`,
	Args: cobra.ExactArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		request, err := selectRequest(cmd, args[0])
		if err != nil {
			return err
		}
		result, err := cli.engine.Select(cmd.Context(), request)
		if err != nil {
			return err
		}
		cli.display(result)
		return nil
	}),
}

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Execute one SQL statement.",
	Args:  cobra.MinimumNArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		result, err := cli.engine.Execute(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		cli.display(result)
		return nil
	}),
}

var applyCmd = &cobra.Command{
	Use:   "apply <location>",
	Short: "Replay a feed from a file, URL or S3 object.",
	Args:  cobra.ExactArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		policy, _ := cmd.Flags().GetString("policy")
		if policy == "" {
			policy = cli.instance.Config.Policy
		}
		return cli.applyFeed(cmd.Context(), args[0], policy)
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export <location> [table...]",
	Short: "Write a feed that recreates the named tables, or every table.",
	Args:  cobra.MinimumNArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		return cli.exportFeed(cmd.Context(), args[0], args[1:]...)
	}),
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect, replay and share the feed journal.",
}

var journalLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List journaled feeds.",
	Args:  cobra.NoArgs,
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		if text := flagString(cmd, "since"); text != "" {
			since, err := parseSince(text, time.Now())
			if err != nil {
				return err
			}
			return cli.journalCommits(since)
		}
		return cli.journalLog()
	}),
}

var journalShowCmd = &cobra.Command{
	Use:   "show <entry>",
	Short: "Print the wire text of a journaled feed.",
	Args:  cobra.ExactArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		entry, err := journal.Lookup(args[0])
		if err != nil {
			return err
		}
		wire, err := journal.Feed(entry)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, wire)
		return nil
	}),
}

var journalReplayCmd = &cobra.Command{
	Use:   "replay [entry...]",
	Short: "Replay journaled feeds against the store, every entry when none are named.",
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		policy, _ := cmd.Flags().GetString("policy")
		return cli.replay(cmd.Context(), policy, args...)
	}),
}

var journalPushCmd = &cobra.Command{
	Use:   "push [remote]",
	Short: "Push the journal to a remote.",
	Args:  cobra.MaximumNArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		opts := syncOptions(cmd, args)
		if err := journal.Push(opts); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s✓ Pushed journal to %s%s\n", SuccessColor, opts.Remote, ResetColor)
		return nil
	}),
}

var journalPullCmd = &cobra.Command{
	Use:   "pull [remote]",
	Short: "Pull journal entries from a remote.",
	Args:  cobra.MaximumNArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		opts := syncOptions(cmd, args)
		arrived, err := journal.Pull(opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s✓ Pulled %d entries from %s%s\n", SuccessColor, len(arrived), opts.Remote, ResetColor)

		if replay, _ := cmd.Flags().GetBool("replay"); replay && len(arrived) > 0 {
			policy, err := db.ParsePolicy(flagString(cmd, "policy"))
			if err != nil {
				return err
			}
			return cli.replayEntries(cmd.Context(), journal, policy, arrived)
		}
		return nil
	}),
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage journal remotes.",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a journal remote.",
	Args:  cobra.ExactArgs(2),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		return journal.AddRemote(args[0], args[1])
	}),
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal remotes.",
	Args:  cobra.NoArgs,
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		remotes, err := journal.ListRemotes()
		if err != nil {
			return err
		}
		if cli.json {
			return cli.writeJSON(remotes)
		}
		for _, remote := range remotes {
			fmt.Fprintf(cli.out, "%s\t%s\n", remote.Name, strings.Join(remote.URLs, ", "))
		}
		return nil
	}),
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a journal remote.",
	Args:  cobra.ExactArgs(1),
	RunE: withCLI(func(cmd *cobra.Command, cli *CLI, args []string) error {
		journal, err := cli.journal()
		if err != nil {
			return err
		}
		return journal.RemoveRemote(args[0])
	}),
}

func init() {
	describeCmd.Flags().Bool("create", false, "print the CREATE statement instead of the columns")

	selectCmd.Flags().StringArrayP("where", "w", nil, "column=value that must match")
	selectCmd.Flags().StringArray("wherenot", nil, "column=value that must not match")
	selectCmd.Flags().StringSlice("columns", nil, "columns to return")
	selectCmd.Flags().Bool("distinct", false, "drop duplicate rows")
	selectCmd.Flags().StringSlice("order-by", nil, "columns to sort by, prefix with - to sort descending")
	selectCmd.Flags().Int("limit", 0, "maximum number of rows")

	applyCmd.Flags().StringP("policy", "p", "", "continue or atomic (defaults to the configured policy)")
	journalLogCmd.Flags().String("since", "", "list journal commits since a duration ago (24h) or a date (2006-01-02)")
	journalReplayCmd.Flags().StringP("policy", "p", "atomic", "continue or atomic")
	journalPullCmd.Flags().Bool("replay", false, "apply the pulled entries to the store")
	journalPullCmd.Flags().StringP("policy", "p", "atomic", "policy used with --replay")

	for _, cmd := range []*cobra.Command{journalPushCmd, journalPullCmd} {
		cmd.Flags().String("branch", "", "branch to sync (defaults to the current branch)")
		cmd.Flags().String("token", "", "access token for HTTPS remotes")
		cmd.Flags().String("ssh-key", "", "private key for SSH remotes")
		cmd.Flags().String("passphrase", "", "passphrase of the SSH key")
		cmd.Flags().String("user", "", "user name for basic auth")
		cmd.Flags().String("password", "", "password for basic auth")
	}

	remoteCmd.AddCommand(remoteAddCmd, remoteListCmd, remoteRemoveCmd)
	journalCmd.AddCommand(journalLogCmd, journalShowCmd, journalReplayCmd, journalPushCmd, journalPullCmd, remoteCmd)
	rootCmd.AddCommand(tablesCmd, describeCmd, selectCmd, execCmd, applyCmd, exportCmd, journalCmd)
}

func selectRequest(cmd *cobra.Command, table string) (db.SelectRequest, error) {
	flags := cmd.Flags()
	whereArgs, _ := flags.GetStringArray("where")
	whereNotArgs, _ := flags.GetStringArray("wherenot")

	where, err := parseConditions(whereArgs)
	if err != nil {
		return db.SelectRequest{}, err
	}
	whereNot, err := parseConditions(whereNotArgs)
	if err != nil {
		return db.SelectRequest{}, err
	}

	columns, _ := flags.GetStringSlice("columns")
	distinct, _ := flags.GetBool("distinct")
	orderBy, _ := flags.GetStringSlice("order-by")
	limit, _ := flags.GetInt("limit")

	return db.SelectRequest{
		Table:    table,
		Where:    where,
		WhereNot: whereNot,
		Columns:  columns,
		Distinct: distinct,
		OrderBy:  orderBy,
		Limit:    limit,
	}, nil
}

// parseConditions turns column=value pairs into a condition.
func parseConditions(pairs []string) (core.Condition, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	condition := core.Condition{}
	for _, pair := range pairs {
		column, value, ok := strings.Cut(pair, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid condition %q: expected column=value", pair)
		}
		condition[column] = parseValue(value)
	}
	return condition, nil
}

// parseValue reads a command line value as NULL, an integer, a float or text.
func parseValue(text string) any {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "null") {
		return nil
	}
	if len(text) >= 2 && (text[0] == '\'' || text[0] == '"') && text[len(text)-1] == text[0] {
		return text[1 : len(text)-1]
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

func flagString(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}

// syncOptions reads the remote argument and the credential flags shared by
// push and pull.
func syncOptions(cmd *cobra.Command, args []string) ps.SyncOptions {
	opts := ps.SyncOptions{Remote: ps.DefaultRemote, Branch: flagString(cmd, "branch")}
	if len(args) > 0 {
		opts.Remote = args[0]
	}

	auth := ps.RemoteAuth{
		Token:      flagString(cmd, "token"),
		KeyPath:    flagString(cmd, "ssh-key"),
		Passphrase: flagString(cmd, "passphrase"),
		Username:   flagString(cmd, "user"),
		Password:   flagString(cmd, "password"),
	}
	if auth != (ps.RemoteAuth{}) {
		opts.Auth = &auth
	}
	return opts
}

func (cli *CLI) journal() (*ps.Journal, error) {
	if cli.instance.Journal == nil {
		return nil, errJournalDisabled
	}
	return cli.instance.Journal, nil
}

func (cli *CLI) showTables(ctx context.Context) error {
	tables, err := cli.engine.ListTables(ctx)
	if err != nil {
		return err
	}
	if cli.json {
		if tables == nil {
			tables = []string{}
		}
		return cli.writeJSON(tables)
	}

	t := db.NewTable(cli.out)
	t.Header([]string{"Table"})
	for _, table := range tables {
		t.Row([]string{table})
	}
	t.Render()
	fmt.Fprintf(cli.out, "%d tables\n", len(tables))
	return nil
}

func (cli *CLI) describe(ctx context.Context, table string) error {
	columns, err := cli.engine.Columns(ctx, table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return core.NewTableNotFound(table)
	}
	if cli.json {
		return cli.writeJSON(columns)
	}

	t := db.NewTable(cli.out)
	t.Header([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	for _, column := range columns {
		t.Row([]string{column.Field, column.Type, column.Null, column.Key, column.Default, column.Extra})
	}
	t.Render()
	return nil
}

func (cli *CLI) showCreate(ctx context.Context, table string) error {
	text, err := cli.engine.CreateStatement(ctx, table)
	if err != nil {
		return err
	}
	if text == "" {
		return core.NewTableNotFound(table)
	}
	fmt.Fprintln(cli.out, text)
	return nil
}

func (cli *CLI) applyFeed(ctx context.Context, location, policyName string) error {
	policy, err := db.ParsePolicy(policyName)
	if err != nil {
		return err
	}
	report, err := cli.engine.ApplyFeedFrom(ctx, location, policy)
	if err != nil {
		return err
	}
	return cli.printReport(report)
}

func (cli *CLI) exportFeed(ctx context.Context, location string, tables ...string) error {
	feed, err := cli.engine.Snapshot(ctx, tables...)
	if err != nil {
		return err
	}
	if err := cli.engine.PublishFeed(ctx, feed, location); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s✓ Exported %d operation(s) to %s%s\n", SuccessColor, len(feed), location, ResetColor)
	return nil
}

func (cli *CLI) journalLog() error {
	journal, err := cli.journal()
	if err != nil {
		return err
	}
	entries, err := journal.Entries()
	if err != nil {
		return err
	}
	if cli.json {
		if entries == nil {
			entries = []ps.Entry{}
		}
		return cli.writeJSON(entries)
	}

	t := db.NewTable(cli.out)
	t.Header([]string{"Seq", "Id", "Applied", "Policy", "Ops", "Failed", "Digest"})
	for _, entry := range entries {
		policy := entry.Policy
		if entry.RolledBack {
			policy += " (rolled back)"
		}
		t.Row([]string{
			strconv.Itoa(entry.Seq),
			entry.Id,
			entry.AppliedAt.Format("2006-01-02 15:04:05"),
			policy,
			strconv.Itoa(entry.Operations),
			strconv.Itoa(entry.Failed),
			db.Shorten(entry.Digest, 16),
		})
	}
	t.Render()
	fmt.Fprintf(cli.out, "%d entries\n", len(entries))
	return nil
}

// parseSince accepts a duration before now, a date or an RFC 3339 time.
func parseSince(text string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if when, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return when, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: expected a duration such as 24h or a date", text)
}

// journalCommits lists the journal's git commits made at or after since.
func (cli *CLI) journalCommits(since time.Time) error {
	journal, err := cli.journal()
	if err != nil {
		return err
	}
	transactions, err := journal.TransactionsSince(since)
	if err != nil {
		return err
	}
	if cli.json {
		commits := make([]commitLogJSON, len(transactions))
		for i, txn := range transactions {
			commits[i] = commitLogJSON{Id: txn.Id, When: txn.When, Author: txn.Author, Message: txn.Message}
		}
		return cli.writeJSON(commits)
	}

	t := db.NewTable(cli.out)
	t.Header([]string{"Commit", "When", "Author", "Message"})
	for _, txn := range transactions {
		t.Row([]string{txn.Id[:min(10, len(txn.Id))], txn.When.Format(time.DateTime), txn.Author, txn.Message})
	}
	t.Render()
	fmt.Fprintf(cli.out, "%d commits\n", len(transactions))
	return nil
}

type commitLogJSON struct {
	Id      string    `json:"id"`
	When    time.Time `json:"when"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
}

// replay applies journaled feeds in sequence order, skipping rolled back ones.
func (cli *CLI) replay(ctx context.Context, policyName string, refs ...string) error {
	journal, err := cli.journal()
	if err != nil {
		return err
	}
	policy, err := db.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	var entries []ps.Entry
	if len(refs) == 0 {
		if entries, err = journal.Entries(); err != nil {
			return err
		}
	}
	for _, ref := range refs {
		entry, err := journal.Lookup(ref)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	return cli.replayEntries(ctx, journal, policy, entries)
}

func (cli *CLI) replayEntries(ctx context.Context, journal *ps.Journal, policy db.Policy, entries []ps.Entry) error {
	for _, entry := range entries {
		if entry.RolledBack {
			continue
		}
		wire, err := journal.Feed(entry)
		if err != nil {
			return err
		}
		report, err := cli.engine.ApplyWire(ctx, wire, policy)
		if err != nil {
			return fmt.Errorf("entry %d: %w", entry.Seq, err)
		}
		fmt.Fprintf(cli.out, "%sEntry %d (%s)%s\n", BoldColor, entry.Seq, entry.Id, ResetColor)
		if err := cli.printReport(report); err != nil {
			return fmt.Errorf("entry %d: %w", entry.Seq, err)
		}
	}
	return nil
}

type outcomeJSON struct {
	Index     int    `json:"index"`
	Operation string `json:"operation"`
	Table     string `json:"table"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

type reportJSON struct {
	Digest     string        `json:"digest"`
	Policy     string        `json:"policy"`
	Duplicate  bool          `json:"duplicate"`
	RolledBack bool          `json:"rolled_back"`
	Outcomes   []outcomeJSON `json:"outcomes"`
}

// printReport prints one line per outcome and returns an error when any operation failed.
func (cli *CLI) printReport(report *db.Report) error {
	failed := len(report.Failed())

	if cli.json {
		out := reportJSON{
			Digest:     report.Digest,
			Policy:     report.Policy.String(),
			Duplicate:  report.Duplicate,
			RolledBack: report.RolledBack,
			Outcomes:   make([]outcomeJSON, 0, len(report.Outcomes)),
		}
		for _, outcome := range report.Outcomes {
			item := outcomeJSON{
				Index:     outcome.Index,
				Operation: outcome.Kind.String(),
				Table:     outcome.Table,
				OK:        outcome.OK(),
			}
			if outcome.Err != nil {
				item.Error = outcome.Err.Error()
				item.Kind = core.KindOf(outcome.Err).String()
			}
			out.Outcomes = append(out.Outcomes, item)
		}
		if err := cli.writeJSON(out); err != nil {
			return err
		}
	} else {
		if report.Duplicate {
			fmt.Fprintf(cli.out, "%s✓ Feed %s already applied, skipped%s\n", SuccessColor, db.Shorten(report.Digest, 16), ResetColor)
			return nil
		}
		for _, outcome := range report.Outcomes {
			if outcome.OK() {
				fmt.Fprintf(cli.out, "%s✓ %s%s\n", SuccessColor, outcome, ResetColor)
			} else {
				fmt.Fprintf(cli.out, "%s✗ %s%s\n", ErrorColor, outcome, ResetColor)
			}
		}
		fmt.Fprintf(cli.out, "%d succeeded, %d failed\n", len(report.Outcomes)-failed, failed)
		if report.RolledBack {
			fmt.Fprintf(cli.out, "%s✗ Feed rolled back%s\n", ErrorColor, ResetColor)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d operation(s) failed", failed)
	}
	return nil
}

type queryJSON struct {
	Columns []string   `json:"columns"`
	Rows    []core.Row `json:"rows"`
	Count   int        `json:"count"`
}

type commitJSON struct {
	TablesCreated  int   `json:"tables_created"`
	TablesAltered  int   `json:"tables_altered"`
	TablesDeleted  int   `json:"tables_deleted"`
	RecordsWritten int   `json:"records_written"`
	RecordsUpdated int   `json:"records_updated"`
	RecordsDeleted int   `json:"records_deleted"`
	RowsAffected   int64 `json:"rows_affected"`
}

func (cli *CLI) display(result db.Result) {
	if cli.json {
		var err error
		switch r := result.(type) {
		case db.QueryResult:
			rows := r.Rows
			if rows == nil {
				rows = []core.Row{}
			}
			err = cli.writeJSON(queryJSON{Columns: r.Columns, Rows: rows, Count: r.RecordsRead})
		case db.CommitResult:
			err = cli.writeJSON(commitJSON{
				TablesCreated:  r.TablesCreated,
				TablesAltered:  r.TablesAltered,
				TablesDeleted:  r.TablesDeleted,
				RecordsWritten: r.RecordsWritten,
				RecordsUpdated: r.RecordsUpdated,
				RecordsDeleted: r.RecordsDeleted,
				RowsAffected:   r.RowsAffected,
			})
		}
		if err != nil {
			cli.printError(err)
		}
		return
	}

	if r, ok := result.(db.QueryResult); ok && len(r.Rows) > 0 {
		t := db.NewTable(cli.out)
		t.MaxWidth(cellWidth(len(r.Columns)))
		t.Header(r.Columns)
		t.Bulk(r.Data())
		t.Render()
		fmt.Fprintf(cli.out, "%d rows (%s)\n", r.RecordsRead, r.ExecutionTime())
		return
	}
	result.Display(cli.out)
}

// cellWidth spreads the terminal width over columns, never going below the default.
func cellWidth(columns int) int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || columns == 0 {
		return db.DefaultCellWidth
	}
	// Each cell carries "| " and a trailing space.
	if w := (width-1)/columns - 3; w > db.DefaultCellWidth {
		return w
	}
	return db.DefaultCellWidth
}

func (cli *CLI) writeJSON(v any) error {
	encoder := json.NewEncoder(cli.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (cli *CLI) printError(err error) {
	if kind := core.KindOf(err); kind != core.UnknownKind {
		fmt.Fprintf(cli.out, "%s✗ Error (%s): %v%s\n", ErrorColor, kind, err, ResetColor)
		return
	}
	fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
}
