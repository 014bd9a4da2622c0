// CLAUDE:SUMMARY CLI entry point for autoconfirm: runs the daemon with optional HTTP admin API and MCP over stdio, or checks for updates.
// Command autoconfirm drives Chrome and fills "type X to confirm" fields on
// the pages it controls.
//
// Usage:
//
//	autoconfirm -config autoconfirm.yaml            # pages and settings from YAML
//	autoconfirm -url https://console.example.com   # control a single page
//	autoconfirm -http :8080 -mcp                    # admin API and MCP over stdio
//	autoconfirm -check-update                       # compare with the latest release and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/autoconfirm/autoconfirm"
)

var version = "dev"

// urlList collects repeated -url flags.
type urlList []string

func (u *urlList) String() string     { return strings.Join(*u, ",") }
func (u *urlList) Set(v string) error { *u = append(*u, v); return nil }

func main() {
	var urls urlList
	configPath := flag.String("config", "", "path to autoconfirm.yaml")
	flag.Var(&urls, "url", "page to control (repeatable)")
	dbPath := flag.String("db", "", "template database (overrides store.path)")
	httpAddr := flag.String("http", "", "admin API listen address (overrides http.addr)")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdin/stdout")
	checkUpdate := flag.Bool("check-update", false, "check for a newer release and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout carries MCP; logs always go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath, urls, *dbPath, *httpAddr)
	if err != nil {
		logger.Error("autoconfirm: config", "error", err)
		os.Exit(2)
	}

	if err := run(ctx, logger, cfg, *serveMCP, *checkUpdate); err != nil {
		logger.Error("autoconfirm: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string, urls []string, dbPath, httpAddr string) (*autoconfirm.Config, error) {
	cfg := autoconfirm.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = autoconfirm.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	for i, u := range urls {
		cfg.Pages = append(cfg.Pages, autoconfirm.PageConfig{ID: fmt.Sprintf("url-%d", i+1), URL: u})
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, logger *slog.Logger, cfg *autoconfirm.Config, serveMCP, checkUpdate bool) error {
	db, err := autoconfirm.OpenDB(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := autoconfirm.New(cfg, db, autoconfirm.WithLogger(logger), autoconfirm.WithVersion(version))
	if err != nil {
		return err
	}
	defer d.Close()

	if checkUpdate {
		info, err := d.CheckUpdate(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.Run(ctx) })

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           d.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		g.Go(func() error {
			logger.Info("autoconfirm: admin API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if serveMCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "autoconfirm", Version: version}, nil)
		d.RegisterMCP(srv)
		g.Go(func() error {
			err := srv.Run(ctx, &mcp.StdioTransport{})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("autoconfirm: stopped")
	return err
}
