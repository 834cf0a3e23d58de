package app

import (
	"time"

	"buildrelay/internal/actions"
	"buildrelay/internal/bus"
	"buildrelay/internal/config"
	"buildrelay/internal/interactions"
	"buildrelay/internal/registry"
	"buildrelay/internal/relay"
	"buildrelay/internal/transport/discord"
)

// Config mapping: translate string-typed file config into component configs.

func mapBusConfig(cfg *config.Config) (bus.Config, error) {
	block, err := config.ParseDurationField("bus.block", cfg.Bus.Block)
	if err != nil {
		return bus.Config{}, err
	}
	claim, err := config.ParseDurationField("bus.claim_interval", cfg.Bus.ClaimInterval)
	if err != nil {
		return bus.Config{}, err
	}
	minIdle, err := config.ParseDurationField("bus.min_idle", cfg.Bus.MinIdle)
	if err != nil {
		return bus.Config{}, err
	}
	return bus.Config{
		Addr:             cfg.Bus.Addr,
		Password:         cfg.Bus.Password,
		Stream:           cfg.Bus.Stream,
		Group:            cfg.Bus.Group,
		Consumer:         cfg.Bus.Consumer,
		Block:            block,
		BatchSize:        cfg.Bus.BatchSize,
		ClaimInterval:    claim,
		MinIdle:          minIdle,
		DeadLetterStream: cfg.Bus.DeadLetterStream,
	}, nil
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	ttl, err := config.ParseDurationField("relay.cache_ttl", cfg.Relay.CacheTTL)
	if err != nil {
		return relay.Config{}, err
	}
	sweep, err := config.ParseDurationField("relay.sweep_interval", cfg.Relay.SweepInterval)
	if err != nil {
		return relay.Config{}, err
	}
	timeout, err := config.ParseDurationField("relay.dispatch_timeout", cfg.Relay.DispatchTimeout)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		QueueSize:       cfg.Relay.QueueSize,
		CacheTTL:        ttl,
		SweepInterval:   sweep,
		DispatchTimeout: timeout,
		RatePerSec:      cfg.Relay.RatePerSec,
		DecodeRetryMax:  cfg.Relay.DecodeRetryMax,
	}, nil
}

func mapRegistryConfig(cfg *config.Config) (registry.Config, error) {
	busy, err := config.ParseDurationField("registry.busy_timeout", cfg.Registry.BusyTimeout)
	if err != nil {
		return registry.Config{}, err
	}
	return registry.Config{Path: cfg.Registry.Path, BusyTimeout: busy}, nil
}

func mapDiscordConfig(cfg *config.Config) (discord.Config, error) {
	timeout, err := config.ParseDurationField("discord.timeout", cfg.Discord.Timeout)
	if err != nil {
		return discord.Config{}, err
	}
	return discord.Config{
		APIBase:   cfg.Discord.APIBase,
		Username:  cfg.Discord.Username,
		AvatarURL: cfg.Discord.AvatarURL,
		Timeout:   timeout,
	}, nil
}

func mapInteractionsConfig(cfg *config.Config) (interactions.Config, error) {
	timeout, err := config.ParseDurationField("interactions.action_timeout", cfg.Interactions.ActionTimeout)
	if err != nil {
		return interactions.Config{}, err
	}
	return interactions.Config{
		Enabled:       cfg.Interactions.Enabled,
		Addr:          cfg.Interactions.Addr,
		PublicKey:     cfg.Interactions.PublicKey,
		AppID:         cfg.Interactions.AppID,
		ActionTimeout: timeout,
	}, nil
}

func mapControllerConfig(cfg *config.Config) (actions.ControllerConfig, error) {
	timeout, err := config.ParseDurationField("builds.timeout", cfg.Builds.Timeout)
	if err != nil {
		return actions.ControllerConfig{}, err
	}
	base := cfg.Builds.APIBase
	if base == "" {
		base = "https://cloudbuild.googleapis.com"
	}
	return actions.ControllerConfig{BaseURL: base, Token: cfg.Builds.Token, Timeout: timeout}, nil
}

func mapMaintenance(cfg *config.Config) (schedule string, retention time.Duration, err error) {
	schedule = cfg.Maintenance.AuditPruneSchedule
	if schedule == "" {
		schedule = "0 4 * * *"
	}
	retention, err = config.ParseDurationOrDefault("maintenance.audit_retention", cfg.Maintenance.AuditRetention, 7*24*time.Hour)
	return schedule, retention, err
}
