package main

import (
	"fmt"
	"os"

	"github.com/danish45007/velocitybloom"
	"github.com/danish45007/velocitybloom/lsm"
	"github.com/decred/slog"
)

var (
	backendLog = slog.NewBackend(os.Stderr)

	log      = backendLog.Logger("BCTL")
	bloomLog = backendLog.Logger("BLMF")
	lsmLog   = backendLog.Logger("LSMT")
)

func init() {
	velocitybloom.UseLogger(bloomLog)
	lsm.UseLogger(lsmLog)
}

// setLogLevels sets the logging level of every subsystem logger.
func setLogLevels(level string) error {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("invalid debug level %q", level)
	}
	for _, logger := range []slog.Logger{log, bloomLog, lsmLog} {
		logger.SetLevel(lvl)
	}
	return nil
}
