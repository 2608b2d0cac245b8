package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/feelancer21/lnurlbridge"
)

func setupLogging(level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("invalid log level: %s", level)
	}

	// Flow output goes to stdout as JSON, keep the log on stderr.
	root := btclog.NewSLogger(btclog.NewDefaultHandler(os.Stderr))

	logger := root.SubSystem(lnurlbridge.Subsystem)
	logger.SetLevel(lvl)
	lnurlbridge.UseLogger(logger)

	return nil
}
