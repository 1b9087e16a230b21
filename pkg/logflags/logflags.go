// Package logflags configures the component debug loggers of the
// monitor.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var monitor = false
var image = false
var symbols = false

var logOut io.Writer

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	lg := logrus.New()
	lg.Formatter = &logrus.TextFormatter{DisableColors: true}
	lg.Level = logrus.DebugLevel
	if !flag {
		lg.Level = logrus.PanicLevel
	}
	if logOut != nil {
		lg.Out = logOut
	} else {
		lg.Out = os.Stderr
	}
	return lg.WithFields(fields)
}

// Monitor returns true if the terminal layer should log.
func Monitor() bool {
	return monitor
}

// MonitorLogger returns a logger for the terminal layer.
func MonitorLogger() *logrus.Entry {
	return makeLogger(monitor, logrus.Fields{"layer": "monitor"})
}

// Image returns true if the image loader should log.
func Image() bool {
	return image
}

// ImageLogger returns a logger for the image loader.
func ImageLogger() *logrus.Entry {
	return makeLogger(image, logrus.Fields{"layer": "image"})
}

// Symbols returns true if the debug symbol index should log.
func Symbols() bool {
	return symbols
}

// SymbolsLogger returns a logger for the debug symbol index.
func SymbolsLogger() *logrus.Entry {
	return makeLogger(symbols, logrus.Fields{"layer": "symbols"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component flags based on the contents of logstr. It
// also redirects logging to logDest, a file path or file descriptor
// number, when non-empty.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "kmon-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "monitor"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "monitor":
			monitor = true
		case "image":
			image = true
		case "symbols":
			symbols = true
		default:
			return fmt.Errorf("unknown log output %q", logcmd)
		}
	}
	return nil
}

// Close closes the logger output redirection, if any.
func Close() {
	if fh, ok := logOut.(*os.File); ok {
		fh.Close()
	}
	logOut = ioutil.Discard
}
