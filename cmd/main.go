package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/lecturelens-backend/internal/config"
	"github.com/yungbote/lecturelens-backend/internal/db"
	"github.com/yungbote/lecturelens-backend/internal/handlers"
	"github.com/yungbote/lecturelens-backend/internal/media"
	"github.com/yungbote/lecturelens-backend/internal/pipeline"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
	"github.com/yungbote/lecturelens-backend/internal/render"
	"github.com/yungbote/lecturelens-backend/internal/repos"
	"github.com/yungbote/lecturelens-backend/internal/scene"
	"github.com/yungbote/lecturelens-backend/internal/server"
	"github.com/yungbote/lecturelens-backend/internal/sse"
	"github.com/yungbote/lecturelens-backend/internal/timeline"
	"github.com/yungbote/lecturelens-backend/internal/transcribe"
	"github.com/yungbote/lecturelens-backend/internal/vision"
)

func main() {
	// Config
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	log, err := logger.New(cfg.Server.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Effective configuration",
		"port", cfg.Server.Port,
		"workRoot", cfg.Storage.WorkRoot,
		"frameInterval", cfg.Media.FrameIntervalSeconds,
		"diffThreshold", cfg.Scene.DiffThreshold,
		"annotateWorkers", cfg.Annotate.Workers,
		"pageUnitBudget", cfg.Render.PageUnitBudget,
	)

	// SQLite
	sqliteService, err := db.NewSQLiteService(cfg.Storage.DatabasePath, log)
	if err != nil {
		log.Error("SQLite init failed", "error", err)
		os.Exit(1)
	}
	if err = sqliteService.AutoMigrateAll(); err != nil {
		log.Error("SQLite auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := sqliteService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	taskRepo := repos.NewTaskRepo(theDB, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	hub := sse.NewHub(log)

	// Pipeline stages
	log.Info("Setting up pipeline stages from main...")
	extractor := media.NewExtractor(log, media.Options{
		FFmpegPath:           cfg.Media.FFmpegPath,
		FrameIntervalSeconds: cfg.Media.FrameIntervalSeconds,
		AudioSampleRateHz:    cfg.Media.AudioSampleRateHz,
		Timeout:              time.Duration(cfg.Media.TimeoutMinutes) * time.Minute,
	})
	if err := extractor.AssertReady(context.Background()); err != nil {
		log.Error("Media extractor not ready", "error", err)
		os.Exit(1)
	}
	selector := scene.NewSelector(log, scene.Options{
		DiffThreshold:     cfg.Scene.DiffThreshold,
		MinSpacingSeconds: cfg.Scene.MinSpacingSeconds,
	})
	transcriber, err := transcribe.NewGCP(log, transcribe.GCPOptions{
		SampleRateHz:   float64(cfg.Media.AudioSampleRateHz),
		MaxRetries:     cfg.Transcribe.MaxRetries,
		InitialBackoff: time.Duration(cfg.Transcribe.InitialBackoffMs) * time.Millisecond,
	})
	if err != nil {
		log.Error("Could not init transcriber", "error", err)
		os.Exit(1)
	}
	captioner, err := vision.NewGCPCaptioner(log)
	if err != nil {
		log.Error("Could not init vision captioner", "error", err)
		os.Exit(1)
	}
	annotator := vision.NewAnnotator(log, captioner, vision.Options{
		Workers:         cfg.Annotate.Workers,
		RetriesPerFrame: cfg.Annotate.RetriesPerFrame,
	})
	renderer := render.NewDocxRenderer(log, render.Options{
		PageUnitBudget:   cfg.Render.PageUnitBudget,
		TextWrapColumns:  cfg.Render.TextWrapColumns,
		ImageWidthInches: cfg.Render.ImageWidthInches,
	})

	// Orchestrator
	workspace, err := pipeline.NewWorkspace(cfg.Storage.WorkRoot)
	if err != nil {
		log.Error("Could not init task workspace", "error", err)
		os.Exit(1)
	}
	orchestrator, err := pipeline.NewOrchestrator(log, pipeline.Deps{
		Tasks:       taskRepo,
		Hub:         hub,
		Workspace:   workspace,
		Extractor:   extractor,
		Selector:    selector,
		Transcriber: transcriber,
		Annotator:       annotator,
		Renderer:        renderer,
		DefaultLanguage: cfg.Transcribe.DefaultLanguage,
		TimelineOpts: timeline.Options{
			MaxSectionGapSeconds: cfg.Timeline.MaxSectionGapSeconds,
			PauseBoundarySeconds: cfg.Timeline.PauseBoundarySeconds,
			HeadingMaxChars:      cfg.Timeline.HeadingMaxChars,
		},
	})
	if err != nil {
		log.Error("Could not init orchestrator", "error", err)
		os.Exit(1)
	}

	// Handlers + router
	taskHandler := handlers.NewTaskHandler(log, orchestrator, taskRepo, hub)
	router := server.NewRouter(server.RouterConfig{TaskHandler: taskHandler})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting server", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
