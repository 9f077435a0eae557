package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/terminal"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attendance terminal",
	Long: `Run the attendance terminal: the HTTP API used by the kiosk UI, the
detection loop that turns camera frames into attendance events, and the
backup scheduler.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-backup", false, "Do not start the backup scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := a.embeddingClient()
	if err := embedder.Health(ctx); err != nil {
		fmt.Printf("Warning: embedding service at %s is not reachable: %v\n", embedder.BaseURL(), err)
	}

	index := a.newIndex(nil)
	var liveness terminal.LivenessPredicate
	if lc := fingerprint.NewLivenessClient(a.cfg.Liveness.URL, constants.DetectionTimeout); lc != nil {
		liveness = lc
		fmt.Printf("Liveness checks enabled (%s)\n", a.cfg.Liveness.URL)
	} else {
		fmt.Println("Liveness checks disabled, running in recognition-only mode")
	}
	pipeline := terminal.NewPipeline(index, a.employees, a.machine, liveness)

	var backups handlers.BackupService
	if !mustGetBool(cmd, "no-backup") {
		sched, queue, err := a.newScheduler(ctx, index)
		if err != nil {
			return err
		}
		if queue != nil {
			queue.Start(ctx)
			defer queue.Close()
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start backup scheduler: %w", err)
		}
		defer sched.Stop()
		fmt.Printf("Backups enabled under %s\n", sched.Layout().Root)
		backups = sched
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		pipeline.Run(ctx, a.cfg.Terminal.DetectInterval)
	}()

	server := web.NewServer(a.cfg, web.Services{
		Machine:   a.machine,
		Directory: a.directory,
		Pipeline:  pipeline,
		Index:     index,
		Backups:   backups,
		Version:   Version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	fmt.Printf("Attendance terminal %s listening on http://%s:%d\n", a.cfg.Terminal.Name, a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		stop()
		<-loopDone
		return err
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Printf("Error during shutdown: %v\n", err)
	}
	<-loopDone
	return nil
}
