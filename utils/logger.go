package utils

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const LOG_HEADER = `${time_rfc3339} ${level} ${short_file}:${line}`

func parseLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// SetupLogger points the package level logger at file (stdout when empty).
// The returned closer releases the file.
func SetupLogger(file, level string) (io.Closer, error) {
	log.SetPrefix("securebidz")
	log.SetHeader(LOG_HEADER)
	log.SetLevel(parseLevel(level))
	if file == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return f, nil
}
