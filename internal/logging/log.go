// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Console selects stderr output instead of a log file.
const Console = "console"

// InitLog parses and sets log-level input. A logPath other than "" or
// "console" sends output to a rotating file.
func InitLog(logLevel string, logPath string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", logLevel, err)
		return err
	}

	var out io.Writer = os.Stderr
	if logPath != "" && logPath != Console {
		out = &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	log.SetOutput(out)
	log.SetFormatter(&Formatter{PID: os.Getpid()})
	log.SetLevel(level)
	return nil
}

// Formatter tags every entry with the process id. Both halves of a
// relaunch append to the same file, so the pid tells them apart.
type Formatter struct {
	log.TextFormatter
	PID int
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	if _, ok := entry.Data["pid"]; !ok {
		entry.Data["pid"] = f.PID
	}
	f.TextFormatter.FullTimestamp = true
	return f.TextFormatter.Format(entry)
}
