package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve questions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		addr := d.cfg.HTTP.Addr
		if a, _ := cmd.Flags().GetString("addr"); a != "" {
			addr = a
		}

		d.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv := server.New(d.orchestrator(), server.Options{
			Bank:     d.bank,
			Gatherer: d.registry,
			Logger:   &d.logger,
		})
		httpSrv := server.NewHTTPServer(addr, srv)

		errCh := make(chan error, 1)
		go func() {
			d.logger.Info().Str("addr", addr).Int("bank", d.bank.Len()).Msg("listening")
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}

		d.logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides GQUIZ_HTTP_ADDR)")
}
