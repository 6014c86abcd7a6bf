package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	simulator "github.com/radieske/chat-bet-bot/internal/gateway-simulator"
	"github.com/radieske/chat-bet-bot/internal/shared/config"
	"github.com/radieske/chat-bet-bot/internal/shared/logger"
	"github.com/radieske/chat-bet-bot/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Métricas Prometheus para conexões e mensagens
	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gateway_sim_ws_connections", Help: "bots conectados"})
	mentionsSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_sim_mentions_sent_total", Help: "menções entregues"})
	repliesRecv := prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_sim_replies_total", Help: "respostas recebidas dos bots"})
	prometheus.MustRegister(wsConnections, mentionsSent, repliesRecv)

	hub := simulator.NewHub(log)
	hub.OnConnections = func(n int) { wsConnections.Set(float64(n)) }
	hub.OnSent = mentionsSent.Inc
	hub.OnReply = repliesRecv.Inc

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("gateway simulator (metrics) running", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: hub.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("gateway simulator (public) running",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/ws,/mentions,/replies"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("gateway simulator stopped")
}
