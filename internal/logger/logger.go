package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	log  zerolog.Logger
	once sync.Once
)

// Init configures the package logger once. Level accepts the usual
// zerolog names (debug, info, warn, error); anything else means info.
func Init(level string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		log = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	})
}

// Get returns the package logger, initializing it at info level if
// Init was never called.
func Get() zerolog.Logger {
	Init("info")
	return log
}

// With returns a logger tagged with a component name.
func With(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}
