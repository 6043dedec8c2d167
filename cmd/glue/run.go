package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-test-framework/glue-metamask-android/internal/config"
	"github.com/wallet-test-framework/glue-metamask-android/internal/ctl"
	"github.com/wallet-test-framework/glue-metamask-android/internal/invariant"
	"github.com/wallet-test-framework/glue-metamask-android/internal/lock"
	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
	"github.com/wallet-test-framework/glue-metamask-android/internal/session"
	"github.com/wallet-test-framework/glue-metamask-android/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the glue and serve test clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var logWriter io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logWriter = f
	}
	logger := logx.New(logWriter, logx.ParseLevel(cfg.Logging.Level))
	mainLog := logger.Component("glue")

	fileLock := lock.New(filepath.Join(stateDir, "glue.lock"))
	if err := fileLock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = fileLock.Unlock() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	forceExitOnSecondSignal()

	mainLog.Infof("starting pid=%d driver=%s", os.Getpid(), cfg.Driver.ServerURL)
	sess, err := session.Start(ctx, session.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	ws := transport.NewServer(cfg.Transport.ListenAddr, sess, logger)
	if err := ws.Listen(); err != nil {
		stopCtx := context.Background()
		_ = sess.Stop(stopCtx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return ws.Serve(gctx) })
	g.Go(func() error {
		return config.Watch(gctx, configPath, func(next config.Config) {
			logger.SetLevel(logx.ParseLevel(next.Logging.Level))
			mainLog.Infof("config reloaded, log level=%s", next.Logging.Level)
		})
	})

	ctlServer, err := startControl(cfg, sess, logger, stop)
	if err != nil {
		mainLog.Warnf("control socket unavailable: %v", err)
	} else if ctlServer != nil {
		defer func() { _ = ctlServer.Stop() }()
	}

	runErr := g.Wait()

	if err := sess.Stop(context.Background()); err != nil {
		mainLog.Warnf("session stop: %v", err)
	}

	if runErr != nil {
		if invariant.Is(runErr) {
			// Correlation state can no longer be trusted; terminate.
			fmt.Fprintf(os.Stderr, "fatal: %v\n", runErr)
			return runErr
		}
		return runErr
	}
	mainLog.Infof("stopped")
	return nil
}

// startControl brings up the local control socket, if configured.
func startControl(cfg config.Config, sess *session.Session, logger *logx.Logger, shutdown func()) (*ctl.Server, error) {
	socketPath := cfg.Control.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(stateDir, "glue.sock")
	}

	server := ctl.NewServer(socketPath, logger)
	server.Handle(ctl.CmdPing, func(req *ctl.Request) *ctl.Response {
		return ctl.SuccessResponse(map[string]string{"status": "ok"})
	})
	server.Handle(ctl.CmdStatus, func(req *ctl.Request) *ctl.Response {
		return ctl.SuccessResponse(sess.Status())
	})
	server.Handle(ctl.CmdShutdown, func(req *ctl.Request) *ctl.Response {
		go shutdown()
		return ctl.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	if err := server.Start(); err != nil {
		return nil, err
	}
	return server, nil
}

// forceExitOnSecondSignal exits immediately when a second interrupt
// arrives during graceful shutdown.
func forceExitOnSecondSignal() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		<-sigCh
		fmt.Fprintln(os.Stderr, "second signal received, forcing exit")
		os.Exit(1)
	}()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running glue's session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := controlClient()
		if err != nil {
			return err
		}
		resp, err := client.Send(ctl.CmdStatus)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("status: %s", resp.Error)
		}
		var pretty map[string]any
		if err := json.Unmarshal(resp.Data, &pretty); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running glue",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := controlClient()
		if err != nil {
			return err
		}
		resp, err := client.Send(ctl.CmdShutdown)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("shutdown: %s", resp.Error)
		}
		fmt.Println("shutdown requested")
		return nil
	},
}

func controlClient() (*ctl.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	socketPath := cfg.Control.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(stateDir, "glue.sock")
	}
	return ctl.NewClient(socketPath), nil
}
