package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/p8ls/am"
	"github.com/teranos/p8ls/errors"
	"github.com/teranos/p8ls/logger"
	"github.com/teranos/p8ls/lsp"
	"github.com/teranos/p8ls/server"
	"github.com/teranos/p8ls/version"
)

// ServeCmd starts the language server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve PICO-8 completion and hover over LSP",
	Long: `Serve PICO-8 completion and hover over the Language Server Protocol.

By default p8ls speaks LSP on stdin/stdout, the way editors launch language
servers. --tcp and --ws serve any number of clients over the network; every
connection gets its own document cache.

Examples:
  p8ls serve                         # stdio
  p8ls serve --tcp 127.0.0.1:7997    # TCP
  p8ls serve --ws 127.0.0.1:7998     # WebSocket at /lsp, health at /healthz`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().String("transport", am.TransportStdio, "Transport: stdio, tcp or websocket")
	ServeCmd.Flags().String("tcp", am.DefaultTCPAddress, "Serve LSP over TCP on this address")
	ServeCmd.Flags().String("ws", am.DefaultWSAddress, "Serve LSP over WebSocket on this address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return err
	}

	// An address flag selects its transport unless --transport says otherwise
	if !cmd.Flags().Changed("transport") {
		switch {
		case cmd.Flags().Changed("tcp"):
			cfg.Server.Transport = am.TransportTCP
		case cmd.Flags().Changed("ws"):
			cfg.Server.Transport = am.TransportWebSocket
		}
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	service := lsp.NewService(nil, lsp.NewFileGate(cfg.LSP.Extensions...))
	srv := server.New(service, service, serverOptions(cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch {
		stopWatcher := watchConfig(service, srv)
		defer stopWatcher()
	}

	switch cfg.Server.Transport {
	case am.TransportTCP:
		printServeBanner(cfg, "tcp://"+cfg.Server.TCPAddress)
		return srv.RunTCP(ctx)
	case am.TransportWebSocket:
		printServeBanner(cfg, "ws://"+cfg.Server.WSAddress+"/lsp")
		return srv.RunWebSocket(ctx)
	default:
		// stdout carries the protocol: no banner
		return runStdio(ctx, srv)
	}
}

// runStdio serves stdio until the client exits. A signal ends the process
// without waiting for the client.
func runStdio(ctx context.Context, srv *server.LSPServer) error {
	done := make(chan error, 1)
	go func() { done <- srv.RunStdio() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Infow("Signal received, stopping stdio server")
		return nil
	}
}

func serverOptions(cfg *am.Config) server.Options {
	return server.Options{
		Handler: server.HandlerOptions{
			LanguageIDs:         cfg.LSP.LanguageIDs,
			MaxDocuments:        cfg.LSP.MaxDocuments,
			DynamicRegistration: cfg.LSP.DynamicRegistration,
		},
		TCPAddress:     cfg.Server.TCPAddress,
		WSAddress:      cfg.Server.WSAddress,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
}

// watchConfig applies config file edits to the running server. Only the file
// gate and the origin allow-list change at runtime; transports and cache
// limits need a restart.
func watchConfig(service *lsp.Service, srv *server.LSPServer) func() {
	files := am.LoadedFiles()
	if len(files) == 0 {
		logger.Debugw("No config files to watch")
		return func() {}
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	watcher, err := am.NewConfigWatcher(paths...)
	if err != nil {
		logger.Warnw("Config hot reload disabled", logger.FieldError, err)
		return func() {}
	}

	watcher.OnReload(func(cfg *am.Config) error {
		service.SetGate(lsp.NewFileGate(cfg.LSP.Extensions...))
		srv.SetAllowedOrigins(cfg.Server.AllowedOrigins)
		logger.Infow("Applied reloaded configuration",
			"extensions", cfg.LSP.Extensions,
			"allowed_origins", len(cfg.Server.AllowedOrigins),
		)
		return nil
	})
	watcher.Start()

	return func() {
		if err := watcher.Stop(); err != nil {
			logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
	}
}

// printServeBanner announces a network transport on stderr
func printServeBanner(cfg *am.Config, address string) {
	info := version.Get()
	box := pterm.DefaultBox.WithTitle(pterm.Cyan("p8ls")).WithWriter(os.Stderr)
	box.Println(pterm.Sprintf(
		"Version:    %s (commit %s)\nListening:  %s\nExtensions: %v\nVerbosity:  %s",
		info.Version, info.Short(), address, cfg.LSP.Extensions, logger.LevelName(cfg.Log.Verbosity),
	))
	pterm.Fprintln(os.Stderr, pterm.Gray("Press Ctrl+C to stop"))
}
