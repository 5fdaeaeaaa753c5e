package main

import (
	"github.com/spf13/viper"
	"github.com/srand/fleet/pkg/utils"
)

type ControlConfig struct {
	Grpc utils.GRPCOptions `mapstructure:"grpc"`

	// gRPC URI of the scheduler.
	SchedulerUri string `mapstructure:"scheduler_uri"`
}

func ParseConfig() (*ControlConfig, error) {
	config := &ControlConfig{}
	if err := utils.UnmarshalConfig(viper.GetViper(), config); err != nil {
		return nil, err
	}
	return config, nil
}
