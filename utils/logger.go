package utils

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger sets up the global logrus logger. When file is set the output
// goes to a rotated log file instead of stdout.
func InitLogger(level, format, file string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	log.SetOutput(out)

	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
	}
}
