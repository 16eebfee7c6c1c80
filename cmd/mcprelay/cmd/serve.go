package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	gohttp "net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcprelay/mcprelay/internal/config"
	"github.com/mcprelay/mcprelay/internal/core"
)

var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "address the public listener binds to")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// stop() restores default signal handling so a second Ctrl+C hard-exits.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	env := config.LoadEnv()

	logWriter, closeLog, err := logDestination(env.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c, err := core.New(core.Config{
		DestinationsPath: destinationsPath,
		SecretsPath:      secretsPath,
		AuditDir:         auditDir,
		Logger:           logger,
		Env:              env,
		TelemetryWriter:  logWriter,
	})
	if err != nil {
		return fmt.Errorf("start core: %w", err)
	}

	publicSrv := &gohttp.Server{Addr: addr, Handler: c.Router()}
	adminAddr := fmt.Sprintf("127.0.0.1:%d", env.AdminPort)
	adminSrv := &gohttp.Server{Addr: adminAddr, Handler: c.AdminRouter()}

	errCh := make(chan error, 2)
	go func() { errCh <- serveOrNil(publicSrv) }()
	go func() { errCh <- serveOrNil(adminSrv) }()

	logger.Info("mcprelay started", "addr", addr, "admin_addr", adminAddr)
	printBanner(addr, adminAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}

	logger.Info("mcprelay stopped")
	return nil
}

func serveOrNil(s *gohttp.Server) error {
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
		return err
	}
	return nil
}

// logDestination resolves LOG_FILE into a writer: stderr alone when unset,
// or stderr tee'd to the file when set. The returned closer is always
// safe to defer, even when no file was opened.
func logDestination(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stderr, f), f.Close, nil
}

func printBanner(publicAddr, adminAddr string) {
	fmt.Fprintf(os.Stderr, "mcprelay %s\n", Version)
	fmt.Fprintf(os.Stderr, "  public:  %s\n", publicAddr)
	fmt.Fprintf(os.Stderr, "  admin:   %s (loopback only)\n", adminAddr)
}
