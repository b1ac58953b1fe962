package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/TooLazyToCreate/blood-connect/config"
	"github.com/TooLazyToCreate/blood-connect/internal/app"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	var cfg *config.Config
	if workingDir, err := os.Getwd(); err != nil {
		log.Fatal("os.Getwd() failed with error - " + err.Error())
	} else {
		/* go.env не обязателен: в контейнере переменные приходят из окружения */
		if err := godotenv.Load(workingDir + "/go.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatal("Error loading .env file; Error - " + err.Error())
		}
		if len(os.Args) > 1 && os.Args[1] == "template" {
			config.WriteTemplate(workingDir + "/config.json")
			return
		}
		cfg = config.MustLoad(workingDir + "/config.json")
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.IsDev() {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapConfig.Development = true
	} else {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapConfig.Development = false
	}
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatal("Failed to build logger - " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if err = app.Run(logger, cfg); err != nil {
		logger.Fatal("Server have been stopped with error - " + err.Error())
	} else {
		logger.Info("Server have been stopped.")
	}
}
