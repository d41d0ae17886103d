// Command server boots the full voxpipe process: config, Store, engine
// collaborators, the Orchestrator, the single-worker Queue, the Ingestion
// façade, and the gin HTTP surface, grounded on the teacher's cmd/main.go +
// internal/app wiring sequence (logger -> config -> postgres -> repos ->
// services -> handlers -> router), adapted from the teacher's
// e-learning domain to this one.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/crm"
	"github.com/voxpipe/voxpipe/internal/data/db"
	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/engines/audio"
	"github.com/voxpipe/voxpipe/internal/engines/diarization"
	"github.com/voxpipe/voxpipe/internal/engines/probe"
	"github.com/voxpipe/voxpipe/internal/engines/scoring"
	"github.com/voxpipe/voxpipe/internal/engines/transcription"
	"github.com/voxpipe/voxpipe/internal/ingestion"
	"github.com/voxpipe/voxpipe/internal/orchestrator"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/progress/bus"
	"github.com/voxpipe/voxpipe/internal/queue"
	"github.com/voxpipe/voxpipe/internal/validator"
	"github.com/voxpipe/voxpipe/internal/voxhttp"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("loading configuration")
	cfg := config.Load(log)

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatal("creating uploads dir", "error", err)
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		log.Fatal("creating audio dir", "error", err)
	}

	pg, err := db.NewPostgresService(cfg, log)
	if err != nil {
		log.Fatal("init postgres", "error", err)
	}
	gdb := pg.DB()

	if err := db.AutoMigrateCore(gdb); err != nil {
		log.Fatal("automigrate core", "error", err)
	}
	if err := db.RunGooseMigrations(gdb); err != nil {
		log.Fatal("goose migrations", "error", err)
	}

	operatorRepo := repos.NewOperatorRepo(gdb, log)
	fileRepo := repos.NewFileRepo(gdb, log)
	transcriptionRepo := repos.NewTranscriptionRepo(gdb, log)
	diarizationRepo := repos.NewDiarizationRepo(gdb, log)
	analysisRepo := repos.NewAnalysisRepo(gdb, log)

	probeEngine := probe.NewFFProbe("ffprobe", 30*time.Second)

	transcriber, err := transcription.NewGCPSpeech(context.Background(), log, cfg.WhisperLanguage)
	if err != nil {
		log.Fatal("init transcription engine", "error", err)
	}
	diarizer := diarization.NewHTTPEngine(log, cfg.DiarizationServiceURL, cfg.HFToken)
	scorer := scoring.NewOpenAIChat(log, "", cfg.OpenAIAPIKey, "gpt-4o-mini")
	audioDecoder := audio.NewFFmpegDecoder()

	progressBus := bus.New(log)
	if cfg.RedisAddr != "" {
		forwarder, err := bus.NewRedisForwarder(log, cfg.RedisAddr, cfg.RedisChannel, progressBus)
		if err != nil {
			log.Warn("progress bus redis forwarder disabled", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := forwarder.StartForwarder(ctx); err != nil {
				log.Warn("progress bus redis forwarder failed to start", "error", err)
			} else {
				defer forwarder.Close()
			}
		}
	}

	orch := orchestrator.New(
		&orchestrator.GormTxRunner{DB: gdb},
		log,
		fileRepo,
		transcriptionRepo,
		diarizationRepo,
		analysisRepo,
		transcriber,
		diarizer,
		scorer,
		audioDecoder,
		progressBus,
	)

	q := queue.New(log, orch, fileRepo, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.RecoverInterrupted(ctx); err != nil {
		log.Warn("recovering interrupted files", "error", err)
	}
	go q.Run(ctx)

	vcfg := validator.Config{
		MaxFileSizeMB:  cfg.MaxFileSizeMB,
		MinDurationSec: float64(cfg.MinDurationSec),
		MaxDurationSec: float64(cfg.MaxDurationSec),
	}
	facade := ingestion.New(
		&ingestion.GormTxRunner{DB: gdb},
		log,
		probeEngine,
		vcfg,
		operatorRepo,
		fileRepo,
		cfg.UploadsDir,
		cfg.MaxBatchSize,
		q,
	)

	writeBlob := func(path string, content []byte) error {
		return os.WriteFile(path, content, 0o644)
	}

	crmBridge := crm.New(log, fileRepo, facade)

	router := voxhttp.NewRouter(voxhttp.RouterConfig{
		Upload:      voxhttp.NewUploadHandler(facade, cfg.UploadsDir, writeBlob),
		Results:     voxhttp.NewResultsHandler(fileRepo, operatorRepo, transcriptionRepo, diarizationRepo, analysisRepo),
		Status:      voxhttp.NewStatusHandler(fileRepo),
		Audio:       voxhttp.NewAudioHandler(fileRepo),
		Operators:   voxhttp.NewOperatorsHandler(operatorRepo),
		Health:      voxhttp.NewHealthHandler(gdb, q, cfg.UploadsDir),
		WS:          voxhttp.NewWSHandler(log, progressBus, fileRepo),
		CRM:         crmBridge,
		CORSOrigins: cfg.CORSOrigins,
	})

	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
}
