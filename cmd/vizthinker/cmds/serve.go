package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/api"
	"github.com/go-go-golems/vizthinker/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
	cmd.Flags().String("address", ":8080", "Listen address")
	cmd.Flags().String("static-dir", "", "Directory of a built frontend to serve")
	_ = viper.BindPFlag("server.address", cmd.Flags().Lookup("address"))
	_ = viper.BindPFlag("server.static_dir", cmd.Flags().Lookup("static-dir"))
	return cmd
}

func serve(ctx context.Context) error {
	router, err := events.NewRouter(events.WithVerbose(zerolog.GlobalLevel() <= zerolog.DebugLevel))
	if err != nil {
		return err
	}
	router.AddHandler("log", events.LogHandler)

	a, err := openApp(ctx, router.TreePublisher())
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr: a.settings.Server.Address,
		Handler: api.NewServer(a.svc, api.Config{
			AllowedOrigins: a.settings.Server.AllowedOrigins,
			StaticDir:      a.settings.Server.StaticDir,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		log.Info().Str("address", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		_ = router.Close()
		return err
	})

	return eg.Wait()
}
