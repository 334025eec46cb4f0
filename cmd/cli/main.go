// Package main provides the interactive DataBass shell and its subcommands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/LordWolfenstein/databass"
	"github.com/LordWolfenstein/databass/config"
	"github.com/LordWolfenstein/databass/db"
	sqltext "github.com/LordWolfenstein/databass/sql"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI holds the shell state
type CLI struct {
	instance    *databass.Instance
	engine      *db.Engine
	out         io.Writer
	history     []string
	historyFile string
	json        bool // print results as JSON instead of tables
}

var rootCmd = &cobra.Command{
	Use:           "databass",
	Short:         "Schema-aware SQL front end with replayable change feeds.",
	Long:          "Interactive shell and tooling for DataBass stores: structured reads, raw SQL, feed replay and the feed journal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if getFlag(cmd, "version") {
			fmt.Fprintf(cmd.OutOrStdout(), "DataBass version %s\n", Version)
			return nil
		}

		cli, err := openCLI(cmd)
		if err != nil {
			return err
		}
		defer cli.Close()

		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			return cli.importFile(file)
		}
		if !isTerminal(os.Stdin) {
			return cli.importReader(os.Stdin)
		}

		cli.historyFile = getHistoryPath()
		cli.loadHistory()
		printBanner(cli)
		cli.run(os.Stdin)
		return nil
	},
}

func init() {
	rootCmd.Flags().Bool("version", false, "Report version of this executable")
	rootCmd.Flags().StringP("file", "f", "", "SQL file to execute (non-interactive)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a JSON configuration file")
	rootCmd.PersistentFlags().String("dialect", "", "Store dialect (sqlite, mysql, mariadb, duckdb)")
	rootCmd.PersistentFlags().String("dsn", "", "Driver data source name")
	rootCmd.PersistentFlags().String("path", "", "SQLite or DuckDB database file")
	rootCmd.PersistentFlags().String("journal-dir", "", "Feed journal directory (enables the journal)")
	rootCmd.PersistentFlags().String("git-url", "", "Git URL the journal is cloned from")
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
}

// Get an expected flag, or exit if an error arises.
func getFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// loadConfig reads the configuration file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if value, _ := flags.GetString("dialect"); value != "" {
		cfg.Store.Dialect = value
	}
	if value, _ := flags.GetString("dsn"); value != "" {
		cfg.Store.DSN = value
	}
	if value, _ := flags.GetString("path"); value != "" {
		cfg.Store.Path = value
	}
	if value, _ := flags.GetString("journal-dir"); value != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Dir = value
	}
	if value, _ := flags.GetString("git-url"); value != "" {
		cfg.Journal.GitURL = value
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Log.Level = log.DebugLevel.String()
	}
	return cfg, cfg.Validate()
}

func openCLI(cmd *cobra.Command) (*CLI, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	instance, err := databass.Open(cfg)
	if err != nil {
		return nil, err
	}
	instance.Logger.SetOutput(cmd.ErrOrStderr())

	cli := newCLI(instance, cmd.OutOrStdout())
	asJSON, _ := cmd.Flags().GetBool("json")
	cli.json = asJSON || !isTerminal(os.Stdout)
	return cli, nil
}

func newCLI(instance *databass.Instance, out io.Writer) *CLI {
	return &CLI{
		instance: instance,
		engine:   instance.DefaultEngine(),
		out:      out,
		history:  make([]string, 0),
	}
}

func (cli *CLI) Close() {
	cli.saveHistory()
	if err := cli.instance.Close(); err != nil {
		log.WithError(err).Warn("failed to close store")
	}
}

func isTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

func printBanner(cli *CLI) {
	fmt.Fprintln(cli.out)
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("DataBass v%s", Version)
	padding := bannerWidth - len(versionLine) - 2 // -2 for "  " margins
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Fprintf(cli.out, "%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintf(cli.out, "%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Fprintf(cli.out, "%s%s║   Schema-aware SQL with change feeds  ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintf(cli.out, "%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%sConnected to %s%s\n", SuccessColor, cli.instance.Dialect.Name(), ResetColor)
	fmt.Fprintln(cli.out, "Type .help for commands, .quit to exit")
	fmt.Fprintln(cli.out)
}

func (cli *CLI) run(in io.Reader) {
	reader := bufio.NewReader(in)
	var multiLineBuffer strings.Builder

	for {
		fmt.Fprint(cli.out, cli.getPrompt(multiLineBuffer.Len() > 0))

		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(cli.out, "\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		input = strings.TrimSuffix(input, "\n")
		input = strings.TrimSuffix(input, "\r")

		if strings.TrimSpace(input) == "" {
			continue
		}

		// Dot commands are only recognized outside a multi-line statement
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(strings.TrimSpace(input), ".") {
			if !cli.handleCommand(input) {
				return
			}
			continue
		}

		// Multi-line support: accumulate until we see a semicolon
		multiLineBuffer.WriteString(input)

		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}

		statement := strings.TrimSuffix(trimmed, ";")
		multiLineBuffer.Reset()

		if strings.TrimSpace(statement) == "" {
			continue
		}

		cli.addToHistory(statement + ";")
		cli.execute(statement)
	}
}

func (cli *CLI) execute(statement string) {
	result, err := cli.engine.Execute(context.Background(), statement)
	if err != nil {
		cli.printError(err)
		return
	}
	cli.display(result)
}

func (cli *CLI) getPrompt(multiLine bool) string {
	if multiLine {
		return fmt.Sprintf("%s   ...>%s ", PromptColor, ResetColor)
	}

	storePart := ""
	if cli.instance != nil && cli.instance.Dialect != nil {
		storePart = fmt.Sprintf(" (%s)", cli.instance.Dialect.Name())
	}

	return fmt.Sprintf("%sdatabass%s>%s ", PromptColor, storePart, ResetColor)
}

// handleCommand runs a dot command and reports whether the shell should keep running.
func (cli *CLI) handleCommand(input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return true
	}

	ctx := context.Background()
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Fprintf(cli.out, "%sGoodbye!%s\n", SuccessColor, ResetColor)
		return false

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".tables":
		cli.report(cli.showTables(ctx))

	case ".describe", ".desc":
		if len(parts) < 2 {
			cli.usage(".describe <table>")
			break
		}
		cli.report(cli.describe(ctx, parts[1]))

	case ".schema":
		if len(parts) < 2 {
			cli.usage(".schema <table>")
			break
		}
		cli.report(cli.showCreate(ctx, parts[1]))

	case ".apply":
		if len(parts) < 2 {
			cli.usage(".apply <location> [policy]")
			break
		}
		policy := cli.instance.Config.Policy
		if len(parts) > 2 {
			policy = parts[2]
		}
		cli.report(cli.applyFeed(ctx, parts[1], policy))

	case ".export":
		if len(parts) < 2 {
			cli.usage(".export <location> [table...]")
			break
		}
		cli.report(cli.exportFeed(ctx, parts[1], parts[2:]...))

	case ".journal":
		cli.report(cli.journalLog())

	case ".json":
		cli.json = !cli.json
		fmt.Fprintf(cli.out, "%s✓ JSON output %s%s\n", SuccessColor, onOff(cli.json), ResetColor)

	case ".clear", ".cls":
		fmt.Fprint(cli.out, "\033[H\033[2J")

	case ".history":
		cli.printHistory()

	case ".version":
		fmt.Fprintf(cli.out, "DataBass version %s\n", Version)

	case ".import":
		if len(parts) < 2 {
			cli.usage(".import <file.sql>")
			break
		}
		cli.report(cli.importFile(parts[1]))

	default:
		fmt.Fprintf(cli.out, "%s✗ Unknown command: %s (type .help for commands)%s\n", ErrorColor, parts[0], ResetColor)
	}

	return true
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (cli *CLI) usage(text string) {
	fmt.Fprintf(cli.out, "%s✗ Usage: %s%s\n", ErrorColor, text, ResetColor)
}

func (cli *CLI) report(err error) {
	if err != nil {
		cli.printError(err)
	}
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  .help, .h                Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit             Exit the shell")
	fmt.Fprintln(cli.out, "  .tables                  List tables")
	fmt.Fprintln(cli.out, "  .describe <table>        Show a table's columns")
	fmt.Fprintln(cli.out, "  .schema <table>          Show a table's CREATE statement")
	fmt.Fprintln(cli.out, "  .apply <location> [pol]  Replay a feed (continue or atomic)")
	fmt.Fprintln(cli.out, "  .export <location> [t..] Write a snapshot feed")
	fmt.Fprintln(cli.out, "  .journal                 List journaled feeds")
	fmt.Fprintln(cli.out, "  .import <file>           Execute SQL statements from a file")
	fmt.Fprintln(cli.out, "  .json                    Toggle JSON output")
	fmt.Fprintln(cli.out, "  .history                 Show command history")
	fmt.Fprintln(cli.out, "  .clear                   Clear the screen")
	fmt.Fprintln(cli.out, "  .version                 Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSQL:%s any statement the store understands, terminated by ';'\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintf(cli.out, "%s%sLocations:%s local paths, file://, http(s):// (read only), s3://; a .xz suffix compresses\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out)
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}

	start := 0
	if len(cli.history) > 20 {
		start = len(cli.history) - 20
	}

	for i := start; i < len(cli.history); i++ {
		fmt.Fprintf(cli.out, "  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".databass_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	start := 0
	if len(cli.history) > 1000 {
		start = len(cli.history) - 1000
	}

	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}

// importFile reads and executes SQL statements from a file
func (cli *CLI) importFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()
	return cli.importReader(file)
}

func (cli *CLI) importReader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx := context.Background()
	successCount := 0
	errorCount := 0

	for i, stmt := range splitStatements(string(data)) {
		result, err := cli.engine.Execute(ctx, stmt)
		if err != nil {
			fmt.Fprintf(cli.out, "%s[%d] ✗ %s%s\n", ErrorColor, i+1, truncate(stmt, 50), ResetColor)
			fmt.Fprintf(cli.out, "      Error: %v\n", err)
			errorCount++
			continue
		}
		successCount++

		switch r := result.(type) {
		case db.CommitResult:
			fmt.Fprintf(cli.out, "%s[%d] ✓ %s%s%s\n", SuccessColor, i+1, truncate(stmt, 50), commitDetails(r), ResetColor)
		case db.QueryResult:
			fmt.Fprintf(cli.out, "%s[%d] ✓ %s (%d rows)%s\n", SuccessColor, i+1, truncate(stmt, 50), r.RecordsRead, ResetColor)
		default:
			fmt.Fprintf(cli.out, "%s[%d] ✓ %s%s\n", SuccessColor, i+1, truncate(stmt, 50), ResetColor)
		}
	}

	fmt.Fprintf(cli.out, "\n%s✓ Import complete: %d succeeded, %d failed%s\n",
		SuccessColor, successCount, errorCount, ResetColor)

	if errorCount > 0 {
		return fmt.Errorf("%d statement(s) failed", errorCount)
	}
	return nil
}

func commitDetails(r db.CommitResult) string {
	if summary := r.Summary(); summary != "OK" {
		return " (" + summary + ")"
	}
	return ""
}

// splitStatements splits SQL content into trimmed, non-empty statements
func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range sqltext.SplitStatements(content) {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
