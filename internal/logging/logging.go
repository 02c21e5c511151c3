// Package logging provides a small structured-logging facade shared by
// every layer of the filesystem: the catalog, the handle manager, the
// remote client and the VFS adapter all log through a component entry
// instead of holding their own logger configuration.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root     = logrus.New()
	initOnce sync.Once
)

func ensureInit() {
	initOnce.Do(func() {
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		root.SetLevel(levelFromEnv())
	})
}

func levelFromEnv() logrus.Level {
	if os.Getenv("FUSE_DEBUG") != "" {
		return logrus.DebugLevel
	}
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "ERROR":
		return logrus.ErrorLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "TRACE":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Get returns a logger entry tagged with the given component name, e.g.
// logging.Get("foldertree").Debug("applying change record")
func Get(component string) *logrus.Entry {
	ensureInit()
	return root.WithField("component", component)
}

// SetLevel overrides the process-wide log level, used by the mount CLI's
// --verbose flag.
func SetLevel(level logrus.Level) {
	ensureInit()
	root.SetLevel(level)
}
