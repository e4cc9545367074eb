package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"maestro/pkg/config"
	"maestro/pkg/heartbeat"
	"maestro/pkg/logx"
	"maestro/pkg/metrics"
	"maestro/pkg/sender"
	"maestro/pkg/store"
	"maestro/pkg/webui"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [phone]",
		Short: "Run the full service: webhook, dashboard API, and heartbeat",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logx.NewLogger("main")

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	cfg.SuperPhone = resolveSuperPhone(arg, cfg.SuperPhone, os.Stdin,
		term.IsTerminal(int(os.Stdin.Fd())))

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.NewCollector(prometheus.DefaultRegisterer).Start()

	sendIntro(ctx, rt.store, rt.knowledge.Name, rt.outbound, logger)

	webui.Version = version
	server := webui.NewServer(cfg)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	server.SetRuntime(rt.store, rt.knowledge, rt.conv, rt.outbound)

	if cfg.PrometheusURL != "" {
		query, err := metrics.NewQueryService(cfg.PrometheusURL)
		if err != nil {
			return err
		}
		server.SetActivityQuerier(query)
	}

	hb := heartbeat.NewWorker(
		rt.store, rt.knowledge, rt.conv, rt.outbound,
		filepath.Join(cfg.DataDir, "heartbeat_state.json"),
	)
	if err := hb.Start(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	hb.Stop()
	return nil
}

// resolveSuperPhone picks the super's number: positional argument
// first, then config, then an interactive prompt. Bare numbers get a
// +1 country code, which is what the gateway expects.
func resolveSuperPhone(arg, configured string, in io.Reader, interactive bool) string {
	phone := strings.TrimSpace(arg)
	if phone == "" {
		phone = strings.TrimSpace(configured)
	}
	if phone == "" && interactive {
		fmt.Print("Super's phone number (e.g. +16823521836): ")
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			phone = strings.TrimSpace(scanner.Text())
		}
	}
	if phone != "" && !strings.HasPrefix(phone, "+") {
		phone = "+1" + phone
	}
	return phone
}

// sendIntro texts the super once, on the first boot of a project. An
// existing message row means a previous boot already introduced us.
func sendIntro(ctx context.Context, st *store.Store, project string, out *sender.Sender, logger *logx.Logger) {
	count, err := st.CountMessages()
	if err != nil || count > 0 {
		return
	}
	if err := out.SendMessage(ctx, introMessage(project)); err != nil {
		logger.Warn("Intro message failed: %v", err)
	}
}

func introMessage(project string) string {
	return fmt.Sprintf("Hey — I'm Maestro. I'm reviewing the %s plans right now. "+
		"I'll text you when I find something worth knowing. "+
		"You can also text me anytime with questions about the plans.", project)
}
