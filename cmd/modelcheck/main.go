package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/metal-classifier/util"
)

func main() {
	var dir string
	flag.StringVar(&dir, "dir", "model", "Model directory to list")
	flag.Parse()

	cwd, err := os.Getwd()
	if err != nil {
		logrus.WithError(err).Fatal("failed to resolve working directory")
	}

	if err := util.Report(os.Stdout, dir, cwd); err != nil {
		logrus.WithError(err).Fatal("model check failed")
	}
}
