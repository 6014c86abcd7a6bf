package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/events"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/gateway"
	httpapi "github.com/radieske/chat-bet-bot/internal/bet-bot/http"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/intent"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/llm"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/pipeline"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/producer"
	sharedcache "github.com/radieske/chat-bet-bot/internal/shared/cache"
	"github.com/radieske/chat-bet-bot/internal/shared/config"
	"github.com/radieske/chat-bet-bot/internal/shared/db"
	"github.com/radieske/chat-bet-bot/internal/shared/kafka"
	"github.com/radieske/chat-bet-bot/internal/shared/logger"
	"github.com/radieske/chat-bet-bot/internal/shared/metrics"
)

// Catálogo usado quando o ledger roda em memória
var demoEvents = []ledger.Event{
	{ID: "EVT_001", Title: "India vs Pakistan", Options: []string{"India", "Pakistan"}},
	{ID: "EVT_002", Title: "Flamengo vs Palmeiras", Options: []string{"Flamengo", "Draw", "Palmeiras"}},
	{ID: "EVT_003", Title: "Friday Night Derby", Options: []string{"Home", "Away"}},
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env),
		zap.String("ledger", cfg.LedgerBackend), zap.String("gateway", cfg.GatewayMode))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checks := map[string]metrics.HealthFunc{}

	// Ledger: Postgres (transacional) ou memória (saga + compensação)
	var store ledger.Store
	switch cfg.LedgerBackend {
	case "memory":
		mem := ledger.NewMemory()
		for _, e := range demoEvents {
			mem.AddEvent(e)
		}
		store = mem
		log.Info("in-memory ledger ready", zap.Int("events", len(demoEvents)))
	default:
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		pgStore := ledger.NewPostgres(pg)
		mctx, mcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pgStore.Migrate(mctx); err != nil {
			log.Fatal("ledger migration failed", zap.Error(err))
		}
		mcancel()
		store = pgStore
		checks["postgres"] = pgStore.Ping
		log.Info("postgres connected")
	}

	// Redis: cache de eventos abertos + dedupe de menções (opcional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("redis connected")
	}

	// Métricas Prometheus
	mentions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_mentions_total", Help: "menções por intenção"}, []string{"intent"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_pipeline_outcomes_total", Help: "resultado do pipeline de apostas"}, []string{"outcome"})
	extractions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_llm_extractions_total", Help: "extrações via language model"}, []string{"result"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_compensations_total", Help: "devoluções de crédito após falha no insert"}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "bet_bot_pipeline_duration_seconds", Help: "duração do pipeline", Buckets: prometheus.DefBuckets})
	gwErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_gateway_errors_total", Help: "erros do gateway por estágio"}, []string{"stage"})
	gwMentions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_bot_gateway_mentions_total", Help: "menções recebidas do gateway por estágio"}, []string{"stage"})
	gwDuplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_bot_gateway_duplicates_total", Help: "menções reentregues ignoradas"})
	gwConnected := prometheus.NewGauge(prometheus.GaugeOpts{Name: "bet_bot_gateway_connected", Help: "1 quando conectado ao chat gateway"})
	prometheus.MustRegister(mentions, outcomes, extractions, compensations, duration, gwErrors, gwMentions, gwDuplicates, gwConnected)

	// Language model: sem chave, só o comando estruturado é aceito
	var extractor pipeline.IntentExtractor
	if cfg.LLMAPIKey != "" {
		client := llm.NewClient(cfg.LLMAPIKey,
			llm.WithBaseURL(cfg.LLMBaseURL),
			llm.WithModel(cfg.LLMModel),
			llm.WithRateLimit(cfg.LLMRPS, 1),
		)
		ex := intent.NewExtractor(client, log, cfg.LLMTimeout, cfg.LLMTemperature)
		ex.OnResult = func(r string) { extractions.WithLabelValues(r).Inc() }
		extractor = ex
	} else {
		log.Warn("LLM_API_KEY not set, free-text bets disabled")
	}

	// Eventos abertos (com cache Redis quando disponível)
	openFilter := ledger.OpenFilter(cfg.EventOpenStatus, ledger.ParseMatchMode(cfg.EventStatusMatch))
	// apostas resolvem direto no store: um evento fechado não pode sobreviver no cache
	resolver := events.NewResolver(store, openFilter)

	p := pipeline.New(store, resolver, extractor, log, pipeline.Options{
		DefaultCredits: cfg.DefaultCredits,
		StoreTimeout:   cfg.StoreTimeout,
	})
	if rdb != nil && cfg.EventsCacheTTL > 0 {
		p.WithListing(events.NewResolver(events.NewCachedLister(store, rdb, cfg.EventsCacheTTL, log), openFilter))
	}
	p.OnOutcome = func(o string) { outcomes.WithLabelValues(o).Inc() }
	p.OnDuration = func(d time.Duration) { duration.Observe(d.Seconds()) }
	p.OnCompensate = func(ok bool) {
		if ok {
			compensations.WithLabelValues("restored").Inc()
		} else {
			compensations.WithLabelValues("failed").Inc()
		}
	}

	// bet_placed no Kafka (best-effort)
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		if cfg.Env == "local" || cfg.Env == "dev" {
			tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
			if err := kafka.EnsureTopics(tctx, brokers, cfg.TopicBetPlaced, cfg.TopicChatMentions, cfg.TopicChatReplies, cfg.TopicChatMentionsDLQ); err != nil {
				log.Warn("failed to ensure kafka topics", zap.Error(err))
			}
			tcancel()
		}
		pub := producer.NewKafkaPublisher(kafka.NewWriter(brokers, cfg.TopicBetPlaced), log)
		defer pub.Close()
		p.WithPublisher(pub)
	}

	bot := pipeline.NewBot(p, log)
	bot.OnIntent = func(i string) { mentions.WithLabelValues(i).Inc() }

	// Gateway de chat
	var dedupe gateway.Deduper
	if rdb != nil && cfg.MentionDedupeTTL > 0 {
		dedupe = gateway.NewRedisDeduper(rdb, cfg.MentionDedupeTTL)
	}
	dispatcher := gateway.NewDispatcher(bot, dedupe, cfg.Workers, log)
	dispatcher.OnMention = func() { gwMentions.WithLabelValues("dispatched").Inc() }
	dispatcher.OnDuplicate = gwDuplicates.Inc
	dispatcher.OnError = func(stage string) { gwErrors.WithLabelValues(stage).Inc() }

	gatewayDone := make(chan struct{})
	switch cfg.GatewayMode {
	case "ws":
		ws := &gateway.WSClient{
			URL:        cfg.GatewayWSURL,
			Log:        log,
			Dispatcher: dispatcher,
			OnConnected: func(up bool) {
				if up {
					gwConnected.Set(1)
				} else {
					gwConnected.Set(0)
				}
			},
		}
		go func() {
			defer close(gatewayDone)
			ws.Start(ctx)
		}()
	case "kafka":
		if len(brokers) == 0 {
			log.Fatal("GATEWAY_MODE=kafka requires KAFKA_BROKERS")
		}
		reader := kafka.NewReader(brokers, cfg.TopicChatMentions, cfg.ServiceName)
		replies := kafka.NewWriter(brokers, cfg.TopicChatReplies)
		dlq := kafka.NewWriter(brokers, cfg.TopicChatMentionsDLQ)
		defer reader.Close()
		defer replies.Close()
		defer dlq.Close()
		consumer := &gateway.KafkaConsumer{
			Log:        log,
			Reader:     reader,
			Replies:    replies,
			DLQ:        dlq,
			Dispatcher: dispatcher,
			OnConsumed: func() { gwMentions.WithLabelValues("consumed").Inc() },
			OnError:    func(stage string) { gwErrors.WithLabelValues(stage).Inc() },
		}
		go func() {
			defer close(gatewayDone)
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("mention consumer stopped", zap.Error(err))
			}
		}()
	default:
		close(gatewayDone)
		log.Info("chat gateway disabled, HTTP API only")
	}

	// Métricas e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, checks)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// API HTTP
	api := &httpapi.API{Bot: bot, Users: store}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("bet-bot api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	<-gatewayDone
	dispatcher.Wait()
	log.Info("bet-bot stopped")
}
