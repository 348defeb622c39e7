package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/server"
	"github.com/sells-group/social-listener/internal/task"
)

var (
	servePort   int
	serveNoPoll bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background poll loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !serveNoPoll {
			go pollLoop(ctx, env)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(env.Store, env.Tracker, env.Collector, env.Analyzer, env.Drafter).Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pollLoop triggers a collect run followed by an analyze run on the
// interval from the settings table. The interval is re-read every cycle,
// so edits through the API take effect without a restart. A cycle whose
// task slot is busy (an API-triggered run in flight) is skipped.
func pollLoop(ctx context.Context, env *env) {
	for {
		interval := pollInterval(ctx, env)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := env.Tracker.Start(task.TypeCollect, 0, "scheduled collection"); err == nil {
			if _, err := env.Collector.Run(ctx); err != nil {
				zap.L().Error("scheduled collect failed", zap.Error(err))
				continue
			}
		}
		if err := env.Tracker.Start(task.TypeAnalyze, 0, "scheduled analysis"); err == nil {
			if _, err := env.Analyzer.Run(ctx); err != nil {
				zap.L().Error("scheduled analyze failed", zap.Error(err))
			}
		}
	}
}

func pollInterval(ctx context.Context, env *env) time.Duration {
	raw, err := env.Store.GetSettings(ctx)
	if err != nil {
		zap.L().Warn("poll interval read failed", zap.Error(err))
		return 10 * time.Minute
	}
	set, err := model.ParseSettings(raw)
	if err != nil {
		zap.L().Warn("poll interval parse failed", zap.Error(err))
		return 10 * time.Minute
	}
	return time.Duration(set.PollIntervalMinutes) * time.Minute
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoPoll, "no-poll", false, "disable the scheduled collect/analyze loop")
	rootCmd.AddCommand(serveCmd)
}
