package main

import (
	"errors"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/scheduler"
	"github.com/srand/fleet/pkg/utils"
)

type Config struct {
	utils.GRPCOptions `mapstructure:"grpc"`

	// Addresses to listen on for gRPC.
	ListenGrpc []string `mapstructure:"listen_grpc"`
	// Addresses to listen on for HTTP.
	ListenHttp []string `mapstructure:"listen_http"`
	// HTTP port of the primary instance. Zero makes every instance primary.
	PrimaryPort int `mapstructure:"primary_port"`
	// Run document storage.
	Store StoreConfig `mapstructure:"store"`
	// History of run and task actions.
	Actions ActionLogConfig `mapstructure:"actions"`
	// Scheduling, caching and maintenance.
	Scheduler scheduler.Config `mapstructure:"scheduler"`
}

func (c *Config) SetDefaults() {
	if len(c.ListenGrpc) == 0 {
		c.ListenGrpc = []string{"tcp://:9090"}
	}
	if len(c.ListenHttp) == 0 {
		c.ListenHttp = []string{"tcp://:8080"}
	}
	c.Store.SetDefaults()
	c.Actions.SetDefaults()
	c.Scheduler.SetDefaults()
}

func (c *Config) Validate() error {
	if c.PrimaryPort < 0 || c.PrimaryPort > 65535 {
		return errors.New("primary_port must be a valid port number")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Actions.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}

func (c *Config) Log() {
	log.Info("Scheduler configuration:")
	log.Infof("  gRPC listen addresses: %v", c.ListenGrpc)
	log.Infof("  HTTP listen addresses: %v", c.ListenHttp)
	if c.PrimaryPort > 0 {
		log.Infof("  Primary port: %d", c.PrimaryPort)
	}
	c.Store.LogValues()
	c.Actions.LogValues()
	c.Scheduler.Log()
	c.GRPCOptions.Log()
}
