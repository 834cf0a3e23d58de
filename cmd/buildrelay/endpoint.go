package main

import (
	"context"
	"fmt"
	"time"

	"buildrelay/internal/config"
	"buildrelay/internal/registry"
	logx "buildrelay/pkg/logx"
)

const stopTimeout = 30 * time.Second

type endpointCmd struct {
	Add    endpointAddCmd    `cmd:"" help:"Register a new delivery endpoint."`
	Remove endpointRemoveCmd `cmd:"" help:"Remove an existing endpoint."`
	List   endpointListCmd   `cmd:"" help:"List configured endpoints."`
}

func openStore() (*registry.Store, error) {
	cfg, err := config.NewManager(cli.Config).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cli.Config, err)
	}
	busy, err := config.ParseDurationField("registry.busy_timeout", cfg.Registry.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return registry.Open(registry.Config{Path: cfg.Registry.Path, BusyTimeout: busy}, logx.NewConsole("WARN"))
}

type endpointAddCmd struct {
	ID      string `arg:"" help:"Webhook id."`
	Token   string `arg:"" help:"Webhook token (delivery credential)."`
	Channel string `arg:"" help:"Channel the webhook posts into."`

	Inactive bool `help:"Register the endpoint without activating it."`
}

func (c *endpointAddCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = store.Add(ctx, registry.Endpoint{
		ID:        c.ID,
		Token:     c.Token,
		ChannelID: c.Channel,
		Active:    !c.Inactive,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created endpoint %s in channel %s.\n", c.ID, c.Channel)
	return nil
}

type endpointRemoveCmd struct {
	ID string `arg:"" help:"Webhook id to remove."`
}

func (c *endpointRemoveCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Remove(ctx, c.ID); err != nil {
		return err
	}
	fmt.Printf("Removed endpoint %s.\n", c.ID)
	return nil
}

type endpointListCmd struct{}

func (endpointListCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eps, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		fmt.Println("There are currently no configured endpoints.")
		return nil
	}
	for _, ep := range eps {
		mark := "✅"
		if !ep.Active {
			mark = "❌"
		}
		fmt.Printf("%s  %s  channel=%s\n", mark, ep.ID, ep.ChannelID)
	}
	return nil
}
