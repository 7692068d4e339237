package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/metal-classifier/config"
	"github.com/nvr-ai/metal-classifier/inference"
	"github.com/nvr-ai/metal-classifier/logging"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
	"github.com/nvr-ai/metal-classifier/util"
)

type fileResult struct {
	Path        string                   `json:"path"`
	Predictions []postprocess.Prediction `json:"predictions,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func main() {
	var (
		configPath string
		topK       int
		asJSON     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.IntVar(&topK, "k", 0, "Number of predictions per image (default from configuration)")
	flag.BoolVar(&asJSON, "json", false, "Print one JSON object per image")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image or directory>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if topK > 0 {
		cfg.Model.TopK = topK
	}
	cfg.Runtime.PoolSize = 1
	cfg.Runtime.Warmup = 0

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	files, err := util.LoadImageFiles(flag.Args()...)
	if err != nil {
		logger.WithError(err).Fatal("failed to read images")
	}

	os.Exit(classify(cfg, logger, files, asJSON))
}

// classify prints the predictions for every file and returns the process exit code.
func classify(cfg config.Config, logger *logrus.Logger, files []util.ImageFile, asJSON bool) int {
	engine, err := inference.NewEngineBuilderFromConfig(cfg).
		WithLogger(logger).
		WithSessions(cfg.Runtime.LibraryPath, cfg.Runtime.PoolSize).
		Build()
	if err != nil {
		logger.WithError(err).Error("failed to load model")
		return 1
	}
	defer inference.DestroyRuntime()
	defer engine.Close()

	code := 0
	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		result := fileResult{Path: f.Path}
		preds, err := engine.ClassifyBytes(context.Background(), f.Data)
		if err != nil {
			code = 1
			result.Error = err.Error()
		}
		result.Predictions = preds

		if !asJSON {
			printResult(result)
			continue
		}
		if err := enc.Encode(result); err != nil {
			logger.WithError(err).Error("failed to write result")
			return 1
		}
	}
	return code
}

func printResult(r fileResult) {
	if r.Error != "" {
		fmt.Printf("%s: error: %s\n", r.Path, r.Error)
		return
	}
	fmt.Printf("%s\n", r.Path)
	for i, p := range r.Predictions {
		fmt.Printf("  %d. %-12s %6.2f%%\n", i+1, p.Class, p.Probability*100)
	}
}
