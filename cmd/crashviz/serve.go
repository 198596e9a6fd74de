package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"

	"crash-insights-go/internal/config"
	"crash-insights-go/internal/dataset"
	"crash-insights-go/internal/httpapi"
	"crash-insights-go/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load every city and serve the map, chart and selection API",
	RunE:  runServe,
}

var serveConfig string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Cities config file (default: $CONFIG_FILE)")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings := config.FromEnv()
	if serveConfig != "" {
		settings.ConfigFile = serveConfig
	}
	log.WithField("service", "crashviz").Info("starting service")

	cities, err := config.LoadCities(settings.ConfigFile)
	if err != nil {
		return err
	}
	log.WithField("config", settings.ConfigFile).WithField("cities", len(cities.Cities)).Info("cities loaded")

	src := dataset.NewSource(dataset.Options{
		DataDir:    settings.DataDir,
		Timeout:    settings.FetchTimeout,
		MaxElapsed: settings.FetchMaxElapsed,
		Log:        log,
	})
	sess := session.New(session.Options{
		Cities:      cities,
		Loader:      src,
		Zoom:        settings.DefaultZoom,
		DatabaseURL: settings.DatabaseURL,
		Log:         log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the server comes up at once; the state endpoint reports loading until done
	go func() {
		start := time.Now()
		if err := sess.Load(ctx); err != nil {
			log.WithError(err).Error("initial load failed")
			return
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("initial load finished")
	}()

	api := httpapi.NewServer(sess, cities, settings, log)
	addr := fmt.Sprintf(":%s", settings.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.LoggingHandler(os.Stdout, api.Handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server terminated: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
