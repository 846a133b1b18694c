package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pritzvi/linked-out/internal/api"
	"github.com/pritzvi/linked-out/internal/daemon"
	"github.com/pritzvi/linked-out/internal/setup"
	webui "github.com/pritzvi/linked-out/internal/ui"
)

const (
	shutdownTimeout = 10 * time.Second
	startWait       = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session API server",
	Long: `Run the HTTP API that the polling UI talks to. The server holds one
outreach session: configure it, launch the worker, poll progress and
download the results CSV. By default it listens on port 8420.

Only one server runs per state directory. Interrupting the server fails a
session that is still running and keeps its partial results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8420, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

// pidFile returns the server PID file in the state directory.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "linked-out-serve.pid"))
}

// serveLogPath returns the log file used by `serve start`.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "linked-out-serve.log")
}

// serveURL turns a listen address into a base URL reachable from this host.
func serveURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func serveRun() error {
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))

	pf := pidFile()
	if err := pf.Acquire(addr); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	logger := newLogger(os.Stderr)

	history, err := getStore()
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()

	reg := newKeyRegistry()
	ctrl := newController(setup.NewStore(), reg, history, logger)
	summarizer := registrySummarizer{reg: reg, model: viper.GetString("anthropic.model")}
	srv := api.NewServer(ctrl, history, reg, summarizer)

	dashboard, err := webui.Handler()
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/", srv.Router())
	mux.Handle("/", dashboard)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	go ctrl.Watch(ctx, pollInterval())

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	ui.Success("Serving dashboard at %s (API under /api/v1)", serveURL(addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	ui.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	ctrl.Shutdown(shutdownCtx, "server shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if inst, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d, %s)", inst.PID, inst.Addr)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	logPath := serveLogPath()
	if dryRun {
		ui.DryRunMsg("Would run %s %v, logging to %s", exe, args, logPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		if inst, running := pf.IsRunning(); running && inst.PID == pid {
			ui.Success("Server started (pid %d) at %s", pid, serveURL(inst.Addr))
			ui.Info("Logs: %s", logPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not start within %s, see %s", startWait, logPath)
}

func serveStatusRun() error {
	pf := pidFile()
	inst, running := pf.IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}

	ui.Success("Server running (pid %d) at %s", inst.PID, serveURL(inst.Addr))
	if !inst.StartedAt.IsZero() {
		ui.Info("Up since %s", inst.StartedAt.Local().Format(time.DateTime))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rep, err := fetchReport(ctx, serveURL(inst.Addr))
	if err != nil {
		ui.Warning("Progress unavailable: %v", err)
		return nil
	}
	renderReport(rep)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	inst, running := pf.IsRunning()
	if !running {
		return errors.New("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", inst.PID)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			ui.Success("Server stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	ui.Warning("Server did not exit, killing pid %d", inst.PID)
	if err := pf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill server: %w", err)
	}
	_ = pf.Remove()
	return nil
}
