package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/models/cnn"
)

func main() {
	var (
		paramsPath string
		modelPath  string
		outPath    string
	)
	flag.StringVar(&paramsPath, "params", "params.yaml", "Path to the parameter file")
	flag.StringVar(&modelPath, "model", "", "Artifact to rewrite, defaults to the configured model path")
	flag.StringVar(&outPath, "out", "", "Destination, defaults to rewriting in place")
	flag.Parse()

	if modelPath == "" {
		params, err := config.Load(paramsPath)
		if err != nil {
			log.Fatalf("failed to load params: %v", err)
		}
		modelPath = params.ModelPath()
	}
	if outPath == "" {
		outPath = modelPath
	}

	fmt.Println("Loading existing model...")
	artifact, err := cnn.Load(modelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	fmt.Println("Model loaded successfully!")
	fmt.Printf("Format:       %s\n", artifact.Header.Version)
	fmt.Printf("Input shape:  %v\n", artifact.Network.InputShape())
	fmt.Printf("Output shape: %v\n", artifact.Network.OutputShape())
	fmt.Printf("Parameters:   %d\n", artifact.Network.ParamCount())

	fmt.Printf("\nResaving model as %s...\n", cnn.FormatVersion)
	if err := cnn.Save(outPath, artifact.Network, artifact.Header.Classes); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	fmt.Printf("✅ Model resaved to %s\n", outPath)
}
