package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/coreos/go-systemd/v22/daemon"

	"buildrelay/internal/app"
)

var cli struct {
	Config string `help:"Path to config file (json or yaml)." short:"c" default:"./config.yaml" type:"path"`

	Run      runCmd      `cmd:"" default:"1" help:"Run the relay daemon."`
	Endpoint endpointCmd `cmd:"" help:"Manage delivery endpoints."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("buildrelay"),
		kong.Description("Relays build-status events from a message bus to registered webhook endpoints."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

type runCmd struct{}

func (runCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cli.Config)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return a.Stop(stopCtx)
}
