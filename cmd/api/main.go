package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/einstein-live/backend/internal/config"
	"github.com/zhouzirui/einstein-live/backend/internal/handler"
	"github.com/zhouzirui/einstein-live/backend/internal/handler/events"
	"github.com/zhouzirui/einstein-live/backend/internal/metrics"
	sessionModel "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/internal/service/audio"
	"github.com/zhouzirui/einstein-live/backend/internal/service/avatar"
	"github.com/zhouzirui/einstein-live/backend/internal/service/dialogue"
	"github.com/zhouzirui/einstein-live/backend/internal/service/transcribe"
	"github.com/zhouzirui/einstein-live/backend/internal/service/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	registry := sessionModel.NewRegistry()
	m := metrics.New(prometheus.DefaultRegisterer)
	hub := events.NewHub()

	// Initialize dialogue engine; without Ark credentials it answers with
	// the persona fallback only.
	var chatModel model.BaseChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
			chatModel = nil
		} else {
			log.Println("Chat model initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}
	engine, err := dialogue.NewEngine(ctx, chatModel)
	if err != nil {
		log.Fatalf("failed to initialize dialogue engine: %v", err)
	}

	// Initialize transcription client
	var transcriber turn.Transcriber
	if cfg.Transcribe.Enabled() {
		transcriber = transcribe.NewClient(transcribe.Config{
			Endpoint: cfg.Transcribe.Endpoint,
			APIKey:   cfg.Transcribe.APIKey,
			Timeout:  cfg.Transcribe.Timeout,
		})
		log.Println("Transcription service initialized successfully")
	} else {
		log.Fatal("语音识别服务凭证未配置，请设置 SPEECH_ENDPOINT 和 SPEECH_API_KEY")
	}

	// Initialize avatar streaming client
	var avatarClient *avatar.Client
	if cfg.Avatar.Enabled() {
		avatarClient = avatar.NewClient(avatar.Config{
			BaseURL:  cfg.Avatar.BaseURL,
			APIKey:   cfg.Avatar.APIKey,
			AvatarID: cfg.Avatar.AvatarID,
			VoiceID:  cfg.Avatar.VoiceID,
			Quality:  cfg.Avatar.Quality,
			Timeout:  cfg.Avatar.Timeout,

			OnCreateRetry: m.AvatarCreateRetries.Inc,
		})
		log.Println("Avatar streaming service initialized successfully")
	} else {
		log.Fatal("数字人服务凭证未配置，请设置 AVATAR_API_KEY")
	}

	orchestrator := turn.NewOrchestrator(
		registry,
		audio.NewNormalizer(),
		transcriber,
		engine,
		avatarClient,
		hub,
		m,
	)

	go runSweeper(ctx, registry, avatarClient, hub, m, cfg.Session)

	router := handler.NewRouter(registry, avatarClient, orchestrator, hub, m)

	startServer(ctx, cfg.Server, router)
}

// runSweeper periodically reclaims sessions the browser abandoned without
// calling stop, so remote avatar minutes are not burned on dead tabs.
func runSweeper(
	ctx context.Context,
	registry *sessionModel.Registry,
	avatarClient *avatar.Client,
	hub *events.Hub,
	m *metrics.Metrics,
	cfg config.SessionConfig,
) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := registry.Sweep(cfg.MaxIdle)
			for _, sess := range swept {
				log.Printf("[sweeper] reclaimed idle session id=%s", sess.ID)
				stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := avatarClient.StopSession(stopCtx, sess.ID); err != nil {
					log.Printf("[sweeper] remote stop failed for id=%s: %v", sess.ID, err)
				}
				cancel()
				hub.PublishSessionClosed(sess.ID)
				m.SessionsSwept.Inc()
			}
			if len(swept) > 0 {
				m.ActiveSessions.Set(float64(registry.Len()))
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Einstein Live backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
