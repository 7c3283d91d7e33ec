package search

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromEnv builds a Config from the environment variables spec §6
// names (RANDOM_DROPOUT, RANDOM_SEED, BEAM_SIZE, AUTO_SCHEDULE_TIME_LIMIT),
// falling back to DefaultConfig's values for anything unset. Grounded on
// junjiewwang-perf-analysis/pkg/config's viper.New + SetDefault +
// AutomaticEnv pattern.
func LoadConfigFromEnv() (Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("random_dropout", def.RandomDropout)
	v.SetDefault("random_seed", def.RandomSeed)
	v.SetDefault("beam_size", def.BeamSize)
	v.SetDefault("auto_schedule_time_limit", int64(def.AutoScheduleTimeLimit/time.Second))

	for _, key := range []string{"random_dropout", "random_seed", "beam_size", "auto_schedule_time_limit"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("search: binding %s: %w", key, err)
		}
	}

	return Config{
		RandomDropout:         v.GetInt("random_dropout"),
		RandomSeed:            v.GetInt64("random_seed"),
		BeamSize:              v.GetInt("beam_size"),
		AutoScheduleTimeLimit: time.Duration(v.GetInt64("auto_schedule_time_limit")) * time.Second,
	}, nil
}
