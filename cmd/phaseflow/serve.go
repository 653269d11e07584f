package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/approval"
	pferrors "github.com/randalmurphal/phaseflow/errors"
	"github.com/randalmurphal/phaseflow/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept approvals over HTTP and NATS",
		Long: `Serve the approval webhook and, when nats.url is set, listen for
approval requests on NATS. Engine events are published to NATS as well.

  POST /api/v1/approvals   {"token": "..."} or {"feature", "phase", "signature"}
  GET  /health
  GET  /metrics            Prometheus metrics

Approvals only release the gate; runs are started with 'phaseflow run'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default approval.addr)")
	return cmd
}

func serve(parent context.Context, a *app, addr string) error {
	pc, err := a.project()
	if err != nil {
		return err
	}
	logger := pc.Logger

	var nc *nats.Conn
	if url := pc.Settings.NATSURL; url != "" {
		nc, err = nats.Connect(url,
			nats.Name("phaseflow"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return pferrors.WrapConnectionError(fmt.Errorf("failed to connect to NATS at %s: %w", url, err), url)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "url", url)
	}

	eng, err := phaseflow.New(pc, phaseflow.Options{NATS: nc, Metrics: metrics.Default()})
	if err != nil {
		return pferrors.Describe("", err)
	}
	defer eng.Close()

	v, err := eng.Verifier()
	if err != nil {
		return pferrors.Describe("", err)
	}
	if addr == "" {
		addr = pc.Settings.ApprovalAddr
	}
	srv, err := approval.NewServer(v, eng, addr, logger)
	if err != nil {
		return err
	}
	srv.Mount("/metrics", promhttp.Handler())

	ctx, stop := interruptible(parent)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if nc != nil {
		g.Go(func() error {
			return approval.Listen(ctx, nc, pc.Settings.NATSSubject, v, eng, logger)
		})
	}

	fmt.Fprintf(a.out, "%s Accepting approvals on %s\n", green("✓"), addr)
	if nc != nil {
		fmt.Fprintf(a.out, "  NATS subject: %s\n", pc.Settings.NATSSubject)
	}
	return g.Wait()
}
