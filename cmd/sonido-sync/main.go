package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/RyanBlaney/sonido-sync/pipeline"
	"github.com/RyanBlaney/sonido-sync/retime"
	"github.com/RyanBlaney/sonido-sync/retime/config"
	"github.com/RyanBlaney/sonido-sync/transcode"
)

func main() {
	var (
		originalPath    = flag.String("original", "", "original video or audio file")
		replacementPath = flag.String("replacement", "", "replacement speech audio file")
		outPath         = flag.String("out", "", "output path (.wav writes audio only, anything else is muxed with the original video)")
		envFile         = flag.String("env", "", "dotenv file with SONIDO_SYNC_* settings (default ./.env if present)")
		logLevel        = flag.String("log-level", "info", "debug, info, warn or error")
		reportPath      = flag.String("report", "", "write the run report as JSON to this path")
		ffmpegPath      = flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
		ffprobePath     = flag.String("ffprobe", "ffprobe", "ffprobe binary")
	)
	flag.Parse()

	logger := logging.NewConsoleLogger(os.Stderr, logging.ParseLevel(*logLevel))
	logging.SetGlobalLogger(logger)

	if *originalPath == "" || *replacementPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: sonido-sync -original <file> -replacement <file> -out <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.LoadFromEnv(envFiles...)
	if err != nil {
		logger.Fatal(err, "Failed to load configuration")
	}

	engine, err := retime.NewEngine(cfg)
	if err != nil {
		logger.Fatal(err, "Failed to create retiming engine")
	}

	decoderCfg := transcode.DefaultDecoderConfig()
	decoderCfg.FFmpegPath = *ffmpegPath
	decoderCfg.FFprobePath = *ffprobePath
	decoder := transcode.NewDecoder(decoderCfg)
	if err := decoder.CheckAvailability(); err != nil {
		logger.Fatal(err, "FFmpeg is required")
	}

	muxerCfg := transcode.DefaultMuxerConfig()
	muxerCfg.FFmpegPath = *ffmpegPath

	p := &pipeline.Pipeline{
		Source:      decoder,
		Synthesizer: pipeline.NewFileSynthesizer(decoder, *replacementPath),
		Retimer:     engine,
		Muxer:       transcode.NewMuxer(muxerCfg),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting sonido-sync", logging.Fields{
		"original":    *originalPath,
		"replacement": *replacementPath,
		"output":      *outPath,
	})

	report, err := p.Run(ctx, *originalPath, *outPath)
	if err != nil {
		stop()
		logger.Fatal(err, "Retiming failed")
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, report); err != nil {
			logger.Error(err, "Failed to write report")
		}
	}

	logger.Info("Done", logging.Fields{
		"output":          report.OutputPath,
		"normalized_cost": report.Retime.Alignment.NormalizedCost,
		"anchors":         report.Retime.TimeMap.Len(),
		"clamped_samples": report.Retime.Clamped,
	})
}

func writeReport(path string, report *pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
