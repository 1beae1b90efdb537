package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"watchtower/internal/config"
	"watchtower/internal/frame"
	"watchtower/internal/handler"
	"watchtower/internal/logger"
	"watchtower/internal/route"
	"watchtower/internal/service/ai"
	"watchtower/internal/service/alert"
	"watchtower/internal/service/camera"
	"watchtower/internal/service/pipeline"
	"watchtower/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	source     *camera.Source
	anomaly    *ai.AnomalyDetector
	net        *ai.NetDetector
	pipeline   *pipeline.Pipeline
	dispatcher *alert.Dispatcher
	hub        *websocket.Hub
	streamer   *websocket.Streamer
	server     *http.Server
}

// NewApp builds every stage from cfg. A missing object detection model is
// not fatal: the pipeline runs with anomaly detection only.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	raw := frame.NewBuffer()
	annotated := frame.NewBuffer()

	source := camera.NewSource(cfg.CameraName, cfg.CameraURL, raw, log)

	anomaly := ai.NewAnomalyDetector(ai.AnomalyConfig{
		DiffThreshold:  cfg.DiffThreshold,
		FlowThreshold:  cfg.FlowThreshold,
		MinConsecutive: cfg.MinConsecutive,
		PixelThreshold: cfg.PixelThreshold,
		FlowScale:      ai.DefaultAnomalyConfig().FlowScale,
	}, log.With("component", "anomaly"))

	var objects ai.ObjectDetector = ai.NoopDetector{}
	net, err := ai.NewNetDetector(cfg.ModelPath, cfg.ConfigPath, log.With("component", "detector"))
	if err != nil {
		log.Warning("Object detection disabled: %v", err)
	} else {
		objects = net
	}

	hub := websocket.NewHub(log)
	journal := alert.NewJournal(cfg.AlertJournalSize)
	senders := alert.MultiSender{journal, websocket.NewHubSender(hub)}
	if cfg.TelegramToken != "" {
		telegram, err := alert.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error("Telegram alerts disabled: %v", err)
		} else {
			senders = append(senders, telegram)
		}
	}
	if cfg.WebhookURL != "" {
		senders = append(senders, alert.NewWebhookSender(cfg.WebhookURL, cfg.CameraName, nil))
	}

	dispatcher := alert.NewDispatcher(senders, alert.DispatcherConfig{
		Workers:     cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueue,
		SendTimeout: cfg.DispatchTimeout,
	}, log.With("component", "dispatcher"))

	p := pipeline.New(
		pipeline.Config{Camera: cfg.CameraName, IdleBackoff: cfg.IdleBackoff},
		raw, annotated,
		ai.NewBoundedDetector(objects, cfg.DetectTimeout),
		anomaly,
		ai.NewLabelPolicy(cfg.ConfidenceThreshold, cfg.WeaponLabels, cfg.TrackedLabels),
		dispatcher,
		log,
	)

	router := route.SetupRoutes(&handler.Services{
		Config:     cfg,
		Logger:     log,
		Annotated:  annotated,
		Camera:     source,
		Pipeline:   p,
		Anomaly:    anomaly,
		Dispatcher: dispatcher,
		Journal:    journal,
		Hub:        hub,
		StartedAt:  time.Now(),
	})

	log.Info("Alert channels: %s", senders.Name())
	return &App{
		config:     cfg,
		logger:     log,
		source:     source,
		anomaly:    anomaly,
		net:        net,
		pipeline:   p,
		dispatcher: dispatcher,
		hub:        hub,
		streamer:   websocket.NewStreamer(hub, annotated, cfg.CameraName, cfg.StreamInterval, log),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}, nil
}

// Run opens the camera and runs every loop until ctx is cancelled or one of
// them fails. Cancellation is a clean stop and returns nil.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.source.OpenWithRetry(ctx, a.config.OpenAttempts, a.config.OpenBackoff); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.source.CaptureLoop(ctx) })
	g.Go(func() error { return a.pipeline.Run(ctx) })
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error { return a.streamer.Run(ctx) })
	g.Go(func() error {
		a.logger.Info("🚀 Surveillance server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) close() {
	if err := a.source.Close(); err != nil {
		a.logger.Warning("Failed to close camera: %v", err)
	}
	if err := a.anomaly.Close(); err != nil {
		a.logger.Warning("Failed to release anomaly detector: %v", err)
	}
	if a.net != nil {
		if err := a.net.Close(); err != nil {
			a.logger.Warning("Failed to release detection network: %v", err)
		}
	}
	a.logger.Info("Shutdown complete")
}
