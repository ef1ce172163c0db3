// Package config loads the training and play settings from YAML with
// SNEKQL_ environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/brensch/snekql/executor/agent"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/rules"
)

const EnvPrefix = "SNEKQL"

type Config struct {
	Board  BoardConfig  `mapstructure:"board" yaml:"board"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Model  ModelConfig  `mapstructure:"model" yaml:"model"`
	Rules  RulesConfig  `mapstructure:"rules" yaml:"rules"`
	Train  TrainConfig  `mapstructure:"train" yaml:"train"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Viewer ViewerConfig `mapstructure:"viewer" yaml:"viewer"`
}

type BoardConfig struct {
	Rows    int `mapstructure:"rows" yaml:"rows"`
	Columns int `mapstructure:"columns" yaml:"columns"`
}

type AgentConfig struct {
	MemorySize   int    `mapstructure:"memory_size" yaml:"memory_size"`
	BatchSize    int    `mapstructure:"batch_size" yaml:"batch_size"`
	ExploreGames int    `mapstructure:"explore_games" yaml:"explore_games"`
	ExploreRange int    `mapstructure:"explore_range" yaml:"explore_range"`
	Policy       string `mapstructure:"policy" yaml:"policy"`
	Cost         string `mapstructure:"cost" yaml:"cost"`
}

type ModelConfig struct {
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	Gamma        float64 `mapstructure:"gamma" yaml:"gamma"`
	Hidden       int     `mapstructure:"hidden" yaml:"hidden"`
	Output       int     `mapstructure:"output" yaml:"output"`
	Name         string  `mapstructure:"name" yaml:"name"`
	// Store is "file" or "sqlite"; Path is the directory or database file.
	Store string `mapstructure:"store" yaml:"store"`
	Path  string `mapstructure:"path" yaml:"path"`
	// Onnx, when set, is an exported network used for play instead of the
	// stored parameters.
	Onnx string `mapstructure:"onnx" yaml:"onnx"`
}

type RulesConfig struct {
	StepLimitFactor int     `mapstructure:"step_limit_factor" yaml:"step_limit_factor"`
	FoodReward      float64 `mapstructure:"food_reward" yaml:"food_reward"`
	DeathReward     float64 `mapstructure:"death_reward" yaml:"death_reward"`
}

type TrainConfig struct {
	// Seed 0 means seed from the clock.
	Seed       int64  `mapstructure:"seed" yaml:"seed"`
	MaxGames   int    `mapstructure:"max_games" yaml:"max_games"`
	OutDir     string `mapstructure:"out_dir" yaml:"out_dir"`
	FlushGames int    `mapstructure:"flush_games" yaml:"flush_games"`
	Record     bool   `mapstructure:"record" yaml:"record"`
	Trace      bool   `mapstructure:"trace" yaml:"trace"`
	// WarmStart preloads replay memory from transitions recorded under
	// this directory.
	WarmStart string `mapstructure:"warm_start" yaml:"warm_start"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ViewerConfig struct {
	// Addr serves the websocket frame feed when non-empty, e.g. ":8080".
	Addr string `mapstructure:"addr" yaml:"addr"`
	TUI  bool   `mapstructure:"tui" yaml:"tui"`
}

func Default() Config {
	return Config{
		Board: BoardConfig{Rows: 20, Columns: 20},
		Agent: AgentConfig{
			MemorySize:   agent.DefaultConfig.MemorySize,
			BatchSize:    agent.DefaultConfig.BatchSize,
			ExploreGames: agent.DefaultConfig.ExploreGames,
			ExploreRange: agent.DefaultConfig.ExploreRange,
			Policy:       agent.PolicyLearned,
			Cost:         "manhattan",
		},
		Model: ModelConfig{
			LearningRate: model.DefaultMLPConfig.LearningRate,
			Gamma:        model.DefaultMLPConfig.Gamma,
			Hidden:       model.DefaultMLPConfig.Hidden,
			Output:       model.NumOutputs,
			Name:         "model",
			Store:        "file",
			Path:         "model",
		},
		Rules: RulesConfig{
			StepLimitFactor: rules.DefaultSettings.StepLimitFactor,
			FoodReward:      rules.DefaultSettings.FoodReward,
			DeathReward:     rules.DefaultSettings.DeathReward,
		},
		Train: TrainConfig{OutDir: "data/transitions", FlushGames: 50},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load layers defaults, the YAML file at path (if any) and SNEKQL_*
// environment variables, e.g. SNEKQL_BOARD_ROWS=30.
func Load(path string) (Config, error) {
	base, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, fmt.Errorf("encode defaults: %w", err)
	}

	vp := viper.New()
	vp.SetConfigType("yaml")
	if err := vp.ReadConfig(bytes.NewReader(base)); err != nil {
		return Config{}, fmt.Errorf("read defaults: %w", err)
	}
	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Board.Rows < game.MinBoardSize || c.Board.Columns < game.MinBoardSize {
		errs = append(errs, fmt.Errorf("board must be at least %dx%d, got %dx%d",
			game.MinBoardSize, game.MinBoardSize, c.Board.Rows, c.Board.Columns))
	}
	if c.Agent.MemorySize <= 0 {
		errs = append(errs, fmt.Errorf("agent.memory_size must be positive, got %d", c.Agent.MemorySize))
	}
	if c.Agent.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("agent.batch_size must be positive, got %d", c.Agent.BatchSize))
	}
	if c.Agent.ExploreRange <= 0 {
		errs = append(errs, fmt.Errorf("agent.explore_range must be positive, got %d", c.Agent.ExploreRange))
	}
	if c.Model.Gamma <= 0 || c.Model.Gamma >= 1 {
		errs = append(errs, fmt.Errorf("model.gamma must be in (0,1), got %v", c.Model.Gamma))
	}
	if c.Model.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("model.learning_rate must be positive, got %v", c.Model.LearningRate))
	}
	if c.Model.Hidden <= 0 {
		errs = append(errs, fmt.Errorf("model.hidden must be positive, got %d", c.Model.Hidden))
	}
	if c.Model.Output != model.NumOutputs {
		errs = append(errs, fmt.Errorf("model.output must be %d, got %d", model.NumOutputs, c.Model.Output))
	}
	if c.Train.FlushGames <= 0 {
		errs = append(errs, fmt.Errorf("train.flush_games must be positive, got %d", c.Train.FlushGames))
	}
	return errors.Join(errs...)
}

// YAML renders the effective configuration.
func (c Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c Config) AgentSettings() agent.Config {
	return agent.Config{
		MemorySize:   c.Agent.MemorySize,
		BatchSize:    c.Agent.BatchSize,
		ExploreGames: c.Agent.ExploreGames,
		ExploreRange: c.Agent.ExploreRange,
		Policy:       c.Agent.Policy,
		ModelName:    c.Model.Name,
	}
}

func (c Config) MLPSettings() model.MLPConfig {
	return model.MLPConfig{Hidden: c.Model.Hidden, LearningRate: c.Model.LearningRate, Gamma: c.Model.Gamma}
}

func (c Config) RulesSettings() rules.Settings {
	return rules.Settings{
		StepLimitFactor: c.Rules.StepLimitFactor,
		FoodReward:      c.Rules.FoodReward,
		DeathReward:     c.Rules.DeathReward,
	}
}
