// Command syncd runs the scheduled SFTP intake bridge (SPEC_FULL.md
// §6.2/§10.4: "triggered by cmd/syncd, not the HTTP server"). It mirrors
// cmd/server's dependency construction — the same repos, engine
// collaborators, Orchestrator, and single-worker Queue — so a file pulled
// in over SFTP runs through the identical Validator/Store/Queue/Orchestrator
// path an HTTP upload does; the only difference is the intake surface.
// There is no HTTP listener here, only a ticker-driven sync loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxpipe/voxpipe/internal/config"
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
	"github.com/voxpipe/voxpipe/internal/sftpsync"
	"github.com/voxpipe/voxpipe/internal/validator"
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

	cfg := config.Load(log)
	if cfg.SFTPHost == "" {
		log.Fatal("SFTP_HOST is required for syncd")
	}

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatal("creating uploads dir", "error", err)
	}
	if err := os.MkdirAll(cfg.SFTPStagingDir, 0o755); err != nil {
		log.Fatal("creating sftp staging dir", "error", err)
	}

	pg, err := db.NewPostgresService(cfg, log)
	if err != nil {
		log.Fatal("init postgres", "error", err)
	}
	gdb := pg.DB()

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

	syncer := sftpsync.New(sftpsync.Config{
		Host:           cfg.SFTPHost,
		Port:           cfg.SFTPPort,
		User:           cfg.SFTPUser,
		Password:       cfg.SFTPPassword,
		PrivateKeyPath: cfg.SFTPPrivateKeyPath,
		RemoteDir:      cfg.SFTPRemoteDir,
		StagingDir:     cfg.SFTPStagingDir,
	}, log, facade)

	pollInterval := time.Duration(cfg.SFTPPollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info("syncd started", "remote_dir", cfg.SFTPRemoteDir, "poll_interval", pollInterval)

	runOnce := func() {
		if err := syncer.SyncOnce(ctx); err != nil {
			log.Warn("sftpsync run failed", "error", err)
		}
	}
	runOnce()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			log.Info("syncd shutting down")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
