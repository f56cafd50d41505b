package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/alecthomas/kong"
	"github.com/fwojciec/webscrape/fs"
	wshttp "github.com/fwojciec/webscrape/http"
	webslog "github.com/fwojciec/webscrape/slog"
	"github.com/fwojciec/webscrape/sqlite"
)

// AppName names the XDG directories and environment variables.
const AppName = "webscrape"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Default paths. Set before calling Run().
	CachePath  string
	StatePath  string
	ConfigPath string

	// SQLite database backing the response cache.
	DB    *sqlite.DB
	Cache *sqlite.Cache

	Transport *wshttp.Transport
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		CachePath:  defaultCachePath(),
		StatePath:  filepath.Join(xdg.StateHome, AppName, "state.json"),
		ConfigPath: filepath.Join(xdg.ConfigHome, AppName, "config.yaml"),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.Transport != nil {
		_ = m.Transport.Close()
	}
	if m.Cache != nil {
		if err := m.Cache.Close(); err != nil {
			return err
		}
	}
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name(AppName),
		kong.Description("Download and crawl websites through a persistent cache."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Configuration(YAMLConfig, m.ConfigPath),
		kong.Vars{
			"cache_path": m.CachePath,
			"state_path": m.StatePath,
		},
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run '%s --help' to see available commands", AppName)
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.State = fs.NewStateFile(cli.State)

	command := kongCtx.Command()
	if strings.HasPrefix(command, "status") {
		return kongCtx.Run(deps)
	}

	m.Transport = wshttp.NewTransport()
	deps.Transport = webslog.NewLoggingTransport(m.Transport, deps.Logger)
	defer m.Close()

	if strings.HasPrefix(command, "sitemap") {
		deps.Sitemaps = webslog.NewLoggingSitemapService(
			wshttp.NewSitemap(deps.Transport, wshttp.WithLogger(deps.Logger)),
			deps.Logger,
		)
		return kongCtx.Run(deps)
	}

	if err := m.openCache(ctx, cli.Cache); err != nil {
		fmt.Fprintf(stderr, "Hint: Set %s_CACHE or --cache to use a different cache path\n", strings.ToUpper(AppName))
		return err
	}
	deps.Store = m.Cache
	deps.Cache = webslog.NewLoggingCache(m.Cache, deps.Logger)

	return kongCtx.Run(deps)
}

// openCache creates the directory of path and opens the cache stored there.
func (m *Main) openCache(ctx context.Context, path string) error {
	if path != sqlite.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, cache, err := openCache(ctx, path)
	if err != nil {
		return err
	}
	m.DB, m.Cache = db, cache
	return nil
}

func defaultCachePath() string {
	return filepath.Join(xdg.CacheHome, AppName, "cache.db")
}
