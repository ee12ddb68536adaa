// rosemary - terminal client for the Rosemary agent.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Pondsiders/Rosemary-App/internal/cli"
	"github.com/Pondsiders/Rosemary-App/internal/config"
	"github.com/Pondsiders/Rosemary-App/internal/ui/chat"
	"github.com/Pondsiders/Rosemary-App/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args, err := cli.Parse(argv)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}

	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return cli.ExitSuccess
	}

	cfg, cfgPath, err := loadConfig(args)
	if err != nil {
		if args.ConfigPath != "" {
			cli.DisplayError(os.Stderr, err)
			return cli.GetExitCode(err)
		}
		// The default config file is broken; run on defaults and say so.
		fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", cli.WarningStyle.Render("Warning:"), err)
	}
	config.SetGlobal(cfg)

	logger, closeLog, err := cli.SetupLogging(cfg, args.Verbose)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitGeneralError
	}
	defer closeLog()
	logger.Info("starting", "command", cmd.String(), "version", Version, "server_url", cfg.Server.URL)

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdAsk:
		err = cli.RunAsk(ctx, app, args, cli.StdIO())
	case cli.CmdSessions:
		err = cli.RunSessions(ctx, app, args, cli.StdIO())
	case cli.CmdExport:
		err = cli.RunExport(ctx, app, args, cli.StdIO())
	default:
		err = runTUI(ctx, app, cfgPath)
	}

	if err != nil {
		logger.Error("command failed", "command", cmd.String(), "err", err)
		if ctx.Err() == nil {
			cli.DisplayError(os.Stderr, err)
		}
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// loadConfig loads --config when given, otherwise the default location. It
// also returns the path to watch for changes.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	if args.ConfigPath != "" {
		cfg, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return config.Default(), args.ConfigPath, err
		}
		return cfg, args.ConfigPath, nil
	}

	path, _ := config.ConfigPathTOML()
	cfg, err := config.Load()
	return cfg, path, err
}

// runTUI starts the chat interface.
func runTUI(ctx context.Context, app *cli.App, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfgPath != "" {
		if err := app.WatchConfig(ctx, cfgPath); err != nil {
			app.Logger.Debug("config watch unavailable", "path", cfgPath, "err", err)
		}
	}

	cfg := app.Config
	m := chat.New(ctx, chat.Deps{
		Store:    app.Store,
		Turns:    app.Turns,
		Sessions: app.Bridge,
		Uploader: app.Client,
		Notices:  app.Notices(),
		Logger:   app.Logger.With("component", "ui"),
		Theme:    styles.NewTheme(),
		Options: chat.Options{
			ShowThinking:  cfg.UI.ShowThinking,
			ShowTools:     cfg.UI.ShowTools,
			RenderFPS:     cfg.UI.RenderFPS,
			MaxImageBytes: cfg.Upload.MaxImageBytes,
		},
	})
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
