package app

import (
	"os"

	"github.com/rs/zerolog"
)

// InitLogger builds the root logger. Non-dev environments log JSON lines.
func InitLogger(levelStr string, environment string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if environment != "dev" && environment != "development" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    false,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return zerolog.New(output).With().
		Timestamp().
		Logger()
}
