package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/inference"
	"github.com/nvr-ai/leaf-ml/logging"
	"github.com/nvr-ai/leaf-ml/models"
	"github.com/nvr-ai/leaf-ml/server"
)

func main() {
	var (
		paramsPath string
		addr       string
		modelPath  string
		debug      bool
	)
	flag.StringVar(&paramsPath, "params", "params.yaml", "Path to the parameter file")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	flag.StringVar(&modelPath, "model", "", "Model artifact, overrides inference.model_path")
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
	if modelPath != "" {
		params.Inference.ModelPath = modelPath
	}
	if err := params.Validate(); err != nil {
		logger.Fatal("invalid parameters", zap.Error(err))
	}

	classes, err := models.NewClassSet(params.Data.Classes)
	if err != nil {
		logger.Fatal("invalid class list", zap.Error(err))
	}

	service := inference.NewService(inference.NewLoader(params), classes, logger,
		inference.WithMaxPixels(params.Inference.MaxImagePixels))
	defer service.Close()

	// A failed load keeps the server up so /health and the page can report it.
	if err := service.Load(context.Background()); err != nil {
		logger.Warn("serving without a model",
			zap.String(logging.ModelPathKey, params.ModelPath()),
			zap.String(logging.BackendKey, params.Inference.Backend),
		)
	}

	srv := server.New(service, params.Server, logger)
	if err := srv.ListenAndServe(addr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
