package itemcache

import (
	"log"
	"os"
)

// logger is a minimal leveled logger in the spirit of the teacher's
// rpc/common/logger.go ILogger wrapper, sized down to what this package
// needs: it has no consumer outside Cache itself, so it does not pull in
// dragonboat's logger interface the way lockmgr/raftlock does.
type logger struct {
	prefix string
	std    *log.Logger
}

func newLogger(prefix string) *logger {
	return &logger{
		prefix: prefix,
		std:    log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.std.Printf("[INFO] "+l.prefix+" "+format, args...)
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.std.Printf("[WARN] "+l.prefix+" "+format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.std.Printf("[ERROR] "+l.prefix+" "+format, args...)
}
