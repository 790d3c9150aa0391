package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/vvtts/internal/bus"
	"github.com/dgnsrekt/vvtts/internal/config"
	"github.com/dgnsrekt/vvtts/internal/httpapi"
	"github.com/dgnsrekt/vvtts/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve synthesis requests over NATS and HTTP",
	Long: paragraph(fmt.Sprintf("\n%s synthesis requests until interrupted. The NATS worker answers on bus.subject; the HTTP API listens on http.listen with VOICEVOX engine style routes.",
		keyword("Serve"))),
	Example: paragraph("vvtts serve\nvvtts serve --embedded --http\nnats request voicevox.tts '{\"text\":\"こんにちは\",\"speaker_id\":1}'"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), appOptions{core: true, cache: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if !a.cfg.Bus.Enabled && !a.cfg.HTTP.Enabled {
		return errors.New("nothing to serve: enable bus.enabled and/or http.enabled")
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	busCfg := a.cfg.BusClient()

	if a.cfg.Bus.Enabled {
		if busCfg.Embedded {
			srv, err := bus.StartEmbedded("127.0.0.1", busCfg.EmbeddedPort)
			if err != nil {
				return err
			}
			defer srv.Shutdown()
			busCfg.Servers = []string{srv.ClientURL()}
		}

		conn, err := bus.Connect(busCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Drain(); err != nil {
				log.Warn("Failed to drain NATS connection", "error", err)
			}
			conn.Close()
		}()

		worker := bus.NewWorker(a.svc, busCfg)
		if err := worker.Start(ctx, conn); err != nil {
			return err
		}
		defer worker.Close() //nolint:errcheck
		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on NATS subject %s\n", keyword(worker.Subject()))
	}

	if a.cfg.HTTP.Enabled {
		api := httpapi.New(a.svc, a.core, busCfg.RequestTimeout)
		if a.cfg.HTTP.Metrics {
			tel, err := telemetry.Setup(ctx, config.AppName, Version, true)
			if err != nil {
				return err
			}
			defer func() {
				if err := tel.Shutdown(context.Background()); err != nil {
					log.Warn("Failed to shut down telemetry", "error", err)
				}
			}()
			httpapi.MountMetrics(api, tel.Handler())
		}
		g.Go(func() error {
			return httpapi.Serve(ctx, api, a.cfg.HTTP.Listen)
		})
		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", keyword(a.cfg.HTTP.Listen))
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("Server stopped", "stats", fmt.Sprintf("%+v", a.svc.Stats()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	f := serveCmd.Flags()
	f.Bool("embedded", false, "run an in-process NATS server")
	f.Bool("http", false, "enable the HTTP API")
	f.String("listen", "", "HTTP listen address (default from http.listen)")
	f.String("subject", "", "NATS subject (default from bus.subject)")

	_ = viper.BindPFlag("bus.embedded", f.Lookup("embedded"))
	_ = viper.BindPFlag("http.enabled", f.Lookup("http"))
	_ = viper.BindPFlag("http.listen", f.Lookup("listen"))
	_ = viper.BindPFlag("bus.subject", f.Lookup("subject"))
}
