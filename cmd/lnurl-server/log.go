package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/feelancer21/lnurlbridge"
)

const (
	srvrSubsystem = "SRVR"
	evntSubsystem = "EVNT"
)

type loggers struct {
	srvr btclog.Logger
	evnt btclog.Logger
}

func setupLogging(level string) (*loggers, error) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	root := btclog.NewSLogger(btclog.NewDefaultHandler(os.Stdout))

	subLogger := func(tag string) btclog.Logger {
		l := root.SubSystem(tag)
		l.SetLevel(lvl)
		return l
	}

	lnurlbridge.UseLogger(subLogger(lnurlbridge.Subsystem))

	return &loggers{
		srvr: subLogger(srvrSubsystem),
		evnt: subLogger(evntSubsystem),
	}, nil
}
