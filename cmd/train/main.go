package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/logging"
	"github.com/nvr-ai/leaf-ml/training"
)

func main() {
	var (
		paramsPath string
		debug      bool
	)
	flag.StringVar(&paramsPath, "params", "params.yaml", "Path to the parameter file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := logging.NewLogger(debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	params, err := config.Load(paramsPath)
	if err != nil {
		logger.Fatal("failed to load params", zap.String("path", paramsPath), zap.Error(err))
	}

	trainer, err := training.NewTrainer(params, logger)
	if err != nil {
		logger.Fatal("invalid training parameters", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := trainer.Run(ctx)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	m := result.Metrics
	fmt.Printf("\n✅ Training complete\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("   Images:         %d (%d skipped)\n", m.TotalImages, m.SkippedFiles)
	fmt.Printf("   Split:          %d train / %d validation / %d test\n", m.TrainSize, m.ValSize, m.TestSize)
	fmt.Printf("   Train accuracy: %.4f\n", m.TrainAccuracy)
	fmt.Printf("   Val accuracy:   %.4f\n", m.ValAccuracy)
	fmt.Printf("   Test accuracy:  %.4f\n", m.TestAccuracy)
	fmt.Printf("   Test loss:      %.4f\n", m.TestLoss)
	fmt.Printf("   Model:          %s\n", params.Paths.ModelOutput)
	fmt.Printf("   Metrics:        %s\n", params.Paths.MetricsOutput)
	fmt.Printf("   Plot:           %s\n", result.PlotPath)
}
