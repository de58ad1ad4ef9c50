package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/app"
)

type cliOptions struct {
	RunOnce     bool   `long:"run-once" description:"Run collect, process, and send once for the date, then exit"`
	CollectOnly bool   `long:"collect-only" description:"Run only the collect stage, then exit"`
	ProcessOnly bool   `long:"process-only" description:"Run only the process stage, then exit"`
	SendOnly    bool   `long:"send-only" description:"Run only the send stage, then exit"`
	Date        string `long:"date" description:"Run date in YYYY-MM-DD format (default: today)"`
	Force       bool   `long:"force" description:"Re-execute stages that are already done"`
}

func (o cliOptions) mode() app.Mode {
	switch {
	case o.RunOnce:
		return app.ModeRunOnce
	case o.CollectOnly:
		return app.ModeCollectOnly
	case o.ProcessOnly:
		return app.ModeProcessOnly
	case o.SendOnly:
		return app.ModeSendOnly
	}
	return app.ModeServe
}

func main() {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		logrus.Fatalf("failed to parse flags: %v", err)
	}

	if err := app.Run(app.Options{Mode: opts.mode(), Date: opts.Date, Force: opts.Force}); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
