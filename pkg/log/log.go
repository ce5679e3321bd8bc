package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/christophe-duc/fleetctl/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a new logrus entry pre-tagged with build metadata, the
// backing *logrus.Logger configured from config.UserConfig.Logging.
func NewLogger(config *config.AppConfig) *logrus.Entry {
	var log *logrus.Logger
	if config.Debug || os.Getenv("DEBUG") == "TRUE" {
		log = newDevelopmentLogger(config)
	} else {
		log = newProductionLogger(config)
	}

	log.Formatter = &logrus.JSONFormatter{}

	return log.WithFields(logrus.Fields{
		"debug":     config.Debug,
		"version":   config.Version,
		"commit":    config.Commit,
		"buildDate": config.BuildDate,
	})
}

func getLogLevel(config *config.AppConfig) logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	if strLevel == "" {
		strLevel = config.UserConfig.Logging.Level
	}
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func newDevelopmentLogger(config *config.AppConfig) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(getLogLevel(config))
	logFile := config.UserConfig.Logging.LogFile
	if logFile == "" {
		logFile = filepath.Join(config.ConfigDir, "development.log")
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file")
		os.Exit(1)
	}
	log.SetOutput(file)
	return log
}

func newProductionLogger(config *config.AppConfig) *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(getLogLevel(config))
	return log
}
