package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"charm.land/lipgloss/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/kanflow/internal/adapters/server"
	"github.com/hylla/kanflow/internal/adapters/server/common"
	"github.com/hylla/kanflow/internal/adapters/storage/sqlite"
	"github.com/hylla/kanflow/internal/app"
	"github.com/hylla/kanflow/internal/config"
	"github.com/hylla/kanflow/internal/domain"
	"github.com/hylla/kanflow/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("kanflow", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("KANFLOW_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("KANFLOW_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "kanflow"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "kanflow %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "add", "move", "link", "unlink", "delete", "ready", "blocked", "cycles", "order", "history", "export", "import", "serve", "init", "column":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KANFLOW_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("KANFLOW_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	defaultCfg := config.Default(dbPath)
	switch command {
	case "init":
		return runInit(configPath, defaultCfg, fs.Args()[1:], stdout)
	case "column":
		return runColumn(configPath, defaultCfg, fs.Args()[1:], stdout)
	}

	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		Board: cfg.DomainBoard(),
	})
	adapter := common.NewAppServiceAdapter(svc)
	logger.Debug("application service initialized", "statuses", strings.Join(svc.Board().Statuses, ","))

	logger.Info("command flow start", "command", commandLabel(command))
	if err := dispatch(ctx, command, fs.Args(), svc, adapter, logger, stdout); err != nil {
		logger.Error("command flow failed", "command", commandLabel(command), "err", err)
		return err
	}
	logger.Info("command flow complete", "command", commandLabel(command))
	return nil
}

// dispatch routes one parsed command to its runner.
func dispatch(ctx context.Context, command string, args []string, svc *app.Service, adapter *common.AppServiceAdapter, logger *runtimeLogger, stdout io.Writer) error {
	rest := args
	if len(rest) > 0 {
		rest = rest[1:]
	}
	switch command {
	case "":
		return runBoard(ctx, adapter, stdout)
	case "add":
		return runAdd(ctx, svc, rest, stdout)
	case "move":
		return runMove(ctx, svc, rest, stdout)
	case "link":
		return runLink(ctx, svc, rest, stdout, true)
	case "unlink":
		return runLink(ctx, svc, rest, stdout, false)
	case "delete":
		return runDelete(ctx, svc, rest, stdout)
	case "ready":
		return runItemList(ctx, rest, stdout, svc.Ready)
	case "blocked":
		return runBlocked(ctx, svc, rest, stdout)
	case "cycles":
		return runCycles(ctx, svc, rest, stdout)
	case "order":
		return runOrder(ctx, svc, rest, stdout)
	case "history":
		return runHistory(ctx, svc, rest, stdout)
	case "export":
		return runExport(ctx, svc, rest, stdout)
	case "import":
		return runImport(ctx, svc, rest)
	case "serve":
		return runServe(ctx, adapter, rest, logger)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// commandLabel names the default command for log records.
func commandLabel(command string) string {
	if command == "" {
		return "board"
	}
	return command
}

// runInit writes a starter config file.
func runInit(configPath string, defaults config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kanflow init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var force bool
	fs.BoolVar(&force, "force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse init flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected init arguments: %v", fs.Args())
	}

	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
		}
	}
	if err := config.Save(configPath, defaults); err != nil {
		return fmt.Errorf("write starter config: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "wrote %s\n", configPath)
	return nil
}

// runColumn adds or updates one board column in the config file.
func runColumn(configPath string, defaults config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kanflow column", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		name     string
		wipLimit int
		position int
	)
	fs.StringVar(&name, "name", "", "display name (defaults to the id)")
	fs.IntVar(&wipLimit, "wip", 0, "WIP limit (0 disables)")
	fs.IntVar(&position, "position", 0, "column ordering position")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse column flags: %w", err)
	}
	if len(fs.Args()) != 1 {
		return fmt.Errorf("usage: kanflow column <id> [--name ...] [--wip N] [--position N]")
	}

	id := fs.Args()[0]
	if name == "" {
		name = id
	}
	err := config.UpsertStatus(configPath, defaults, config.StatusConfig{
		ID:       id,
		Name:     name,
		WIPLimit: wipLimit,
		Position: position,
	})
	if err != nil {
		return fmt.Errorf("update column config: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "updated column %s in %s\n", id, configPath)
	return nil
}

// runBoard renders the board grouped by column.
func runBoard(ctx context.Context, adapter *common.AppServiceAdapter, stdout io.Writer) error {
	state, err := adapter.BoardState(ctx)
	if err != nil {
		return fmt.Errorf("load board state: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, renderBoard(state))
	return nil
}

// renderBoard lays the columns out side by side.
func renderBoard(state common.BoardStateResponse) string {
	const columnWidth = 26

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	limitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	overStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	itemStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	idStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	columnStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")).
		Padding(0, 1).
		Width(columnWidth)

	rendered := make([]string, 0, len(state.Columns))
	for _, column := range state.Columns {
		header := titleStyle.Render(column.Status)
		count := fmt.Sprintf("%d", len(column.Items))
		if column.WIPLimit > 0 {
			count = fmt.Sprintf("%d/%d", len(column.Items), column.WIPLimit)
			if len(column.Items) > column.WIPLimit {
				count = overStyle.Render(count)
			} else {
				count = limitStyle.Render(count)
			}
		} else {
			count = limitStyle.Render(count)
		}

		lines := []string{header + " " + count}
		for _, item := range column.Items {
			title := truncate(item.Title, columnWidth-4)
			lines = append(lines, itemStyle.Render(title))
			lines = append(lines, idStyle.Render("  "+truncate(item.ID, columnWidth-6)))
		}
		if len(column.Items) == 0 {
			lines = append(lines, limitStyle.Render("(empty)"))
		}
		rendered = append(rendered, columnStyle.Render(strings.Join(lines, "\n")))
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	footer := fmt.Sprintf("%d items, %d done, %d ready", state.TotalItems, state.DoneItems, len(state.ReadyIDs))
	if state.CycleCount > 0 {
		footer += overStyle.Render(fmt.Sprintf(", %d dependency cycle(s)", state.CycleCount))
	}
	return board + "\n" + limitStyle.Render(footer)
}

// runAdd creates one work item.
func runAdd(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kanflow add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		id      string
		title   string
		status  string
		after   string
		tagsCSV string
	)
	fs.StringVar(&id, "id", "", "explicit item id (defaults to a generated uuid)")
	fs.StringVar(&title, "title", "", "item title")
	fs.StringVar(&status, "status", "", "initial column (defaults to the first column)")
	fs.StringVar(&after, "after", "", "comma-separated predecessor ids")
	fs.StringVar(&tagsCSV, "tags", "", "comma-separated tags")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse add flags: %w", err)
	}
	if title == "" && len(fs.Args()) > 0 {
		title = strings.Join(fs.Args(), " ")
	}

	item, err := svc.CreateItem(ctx, app.CreateItemInput{
		ID:           id,
		Title:        title,
		Status:       status,
		Predecessors: splitCSV(after),
		Tags:         splitCSV(tagsCSV),
	})
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "created %s (%s) in %s\n", item.ID, item.Title, item.Status)
	return nil
}

// runMove applies one status transition and prints the verdict.
func runMove(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: kanflow move <id> <status>")
	}
	outcome, err := svc.MoveItem(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("move item: %w", err)
	}
	for _, warning := range outcome.Result.Warnings {
		_, _ = fmt.Fprintf(stdout, "warning: %s\n", warning)
	}
	if !outcome.Moved {
		for _, msg := range outcome.Result.Errors {
			_, _ = fmt.Fprintf(stdout, "blocked: %s\n", msg)
		}
		return fmt.Errorf("move rejected for %q", args[0])
	}
	_, _ = fmt.Fprintf(stdout, "moved %s to %s\n", outcome.Item.ID, outcome.Item.Status)
	return nil
}

// runLink declares or removes one dependency edge.
func runLink(ctx context.Context, svc *app.Service, args []string, stdout io.Writer, link bool) error {
	if len(args) < 2 {
		if link {
			return fmt.Errorf("usage: kanflow link <predecessor> <successor>")
		}
		return fmt.Errorf("usage: kanflow unlink <predecessor> <successor>")
	}
	if link {
		if err := svc.LinkItems(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("link items: %w", err)
		}
		_, _ = fmt.Fprintf(stdout, "linked %s -> %s\n", args[0], args[1])
		return nil
	}
	if err := svc.UnlinkItems(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("unlink items: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "unlinked %s -> %s\n", args[0], args[1])
	return nil
}

// runDelete removes one item from the board.
func runDelete(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kanflow delete <id>")
	}
	if err := svc.DeleteItem(ctx, args[0]); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "deleted %s\n", args[0])
	return nil
}

// runItemList prints one item query result.
func runItemList(ctx context.Context, args []string, stdout io.Writer, query func(context.Context) ([]domain.WorkItem, error)) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	items, err := query(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(stdout, "no items")
		return nil
	}
	for _, item := range items {
		_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", item.ID, item.Status, item.Title)
	}
	return nil
}

// runBlocked prints unfinished items other items wait on.
func runBlocked(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	return runItemList(ctx, args, stdout, svc.Blocking)
}

// runCycles enumerates dependency cycles.
func runCycles(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	cycles, err := svc.Cycles(ctx)
	if err != nil {
		return fmt.Errorf("detect cycles: %w", err)
	}
	if len(cycles) == 0 {
		_, _ = fmt.Fprintln(stdout, "no cycles")
		return nil
	}
	for _, cycle := range cycles {
		_, _ = fmt.Fprintln(stdout, strings.Join(cycle, " -> "))
	}
	return nil
}

// runOrder prints a dependency-respecting work order.
func runOrder(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	order, err := svc.Order(ctx)
	if err != nil {
		return fmt.Errorf("compute order: %w", err)
	}
	for i, id := range order {
		_, _ = fmt.Fprintf(stdout, "%s\t%s\n", strconv.Itoa(i+1), id)
	}
	return nil
}

// runHistory prints one item's status timeline and per-status totals.
func runHistory(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kanflow history <id>")
	}
	report, err := svc.History(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "%s (%s)\n", report.Item.ID, report.Item.Title)
	for _, entry := range report.Item.History {
		if entry.Closed() {
			_, _ = fmt.Fprintf(stdout, "  %s\t%s -> %s\t%s\n",
				entry.Status,
				entry.EnteredAt.Format(time.RFC3339),
				entry.LeftAt.Format(time.RFC3339),
				domain.FormatDuration(*entry.Duration),
			)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "  %s\t%s -> now\t%s\n",
			entry.Status,
			entry.EnteredAt.Format(time.RFC3339),
			domain.FormatDuration(report.Current),
		)
	}
	_, _ = fmt.Fprintln(stdout, "totals:")
	statuses := make([]string, 0, len(report.Summary))
	for status := range report.Summary {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		_, _ = fmt.Fprintf(stdout, "  %s\t%s\n", status, domain.FormatDuration(report.Summary[status]))
	}
	return nil
}

// runExport runs the requested command flow.
func runExport(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kanflow export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var outPath string
	fs.StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse export flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected export arguments: %v", fs.Args())
	}

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// runImport runs the requested command flow.
func runImport(ctx context.Context, svc *app.Service, args []string) error {
	fs := flag.NewFlagSet("kanflow import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var inPath string
	fs.StringVar(&inPath, "in", "", "input snapshot JSON file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse import flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected import arguments: %v", fs.Args())
	}
	if inPath == "" {
		return fmt.Errorf("--in is required")
	}

	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// runServe starts the REST + MCP server and blocks until shutdown.
func runServe(ctx context.Context, adapter *common.AppServiceAdapter, args []string, logger *runtimeLogger) error {
	fs := flag.NewFlagSet("kanflow serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	fs.StringVar(&httpBind, "http", "", "bind address (default 127.0.0.1:8080)")
	fs.StringVar(&apiEndpoint, "api-endpoint", "", "REST API mount path (default /api/v1)")
	fs.StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP mount path (default /mcp)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected serve arguments: %v", fs.Args())
	}

	cfg := server.Config{
		HTTPBind:      httpBind,
		APIEndpoint:   apiEndpoint,
		MCPEndpoint:   mcpEndpoint,
		ServerName:    "kanflow",
		ServerVersion: version,
	}
	logger.Info("serve starting", "http_bind", cfg.HTTPBind, "api_endpoint", cfg.APIEndpoint, "mcp_endpoint", cfg.MCPEndpoint)
	if err := server.Run(ctx, cfg, server.Dependencies{Board: adapter}); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("serve stopped")
	return nil
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return parsed, true
}

// splitCSV splits one comma-separated flag value into trimmed parts.
func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// truncate shortens one string to fit a rendered cell.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks     []*charmLog.Logger
	closeFile func() error
	devLog    string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks: []*charmLog.Logger{consoleLogger},
	}
	if !devMode {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile, appName, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Error(msg, keyvals...)
	}
}

// devLogFilePath resolves a workspace-local dev log file path for the current run day.
func devLogFilePath(configDir, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = ".kanflow/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(workspaceRootFrom(cwd), baseDir)
	}
	fileStem := sanitizeLogFileStem(appName)
	fileName := fmt.Sprintf("%s-%s.log", fileStem, now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

// workspaceRootFrom resolves the nearest ancestor workspace marker for stable local log placement.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project workspace root.
func hasWorkspaceMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}

// sanitizeLogFileStem normalizes app names into safe file-name segments.
func sanitizeLogFileStem(appName string) string {
	stem := strings.TrimSpace(appName)
	if stem == "" {
		return "kanflow"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem = strings.Trim(replacer.Replace(stem), "-")
	if stem == "" {
		return "kanflow"
	}
	return stem
}
