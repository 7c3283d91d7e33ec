package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/arrayforge/autosched/search"
)

// loadSearchConfig binds search.Config from the four environment variables
// spec §6 names, with search.DefaultConfig's values as fallbacks, grounded
// on junjiewwang-perf-analysis/pkg/config.Load's viper-with-defaults
// pattern (set defaults, then let the environment override).
func loadSearchConfig() search.Config {
	defaults := search.DefaultConfig()

	v := viper.New()
	v.SetDefault("random_dropout", defaults.RandomDropout)
	v.SetDefault("random_seed", defaults.RandomSeed)
	v.SetDefault("beam_size", defaults.BeamSize)
	v.SetDefault("auto_schedule_time_limit", defaults.AutoScheduleTimeLimit.String())
	v.AutomaticEnv()

	cfg := search.Config{
		RandomDropout: v.GetInt("random_dropout"),
		RandomSeed:    v.GetInt64("random_seed"),
		BeamSize:      v.GetInt("beam_size"),
	}

	if d, err := time.ParseDuration(v.GetString("auto_schedule_time_limit")); err == nil {
		cfg.AutoScheduleTimeLimit = d
	} else {
		cfg.AutoScheduleTimeLimit = defaults.AutoScheduleTimeLimit
	}

	return cfg
}
