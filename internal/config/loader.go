package config

import (
	"fmt"

	"github.com/rpattn/retaildwh/internal/db"
	"github.com/spf13/viper"
)

// Pipeline carries the loader settings that are not database credentials.
type Pipeline struct {
	// RulesPath points at an optional YAML rule set; empty means built-in
	// defaults.
	RulesPath string

	// AutoExtendPartitions controls whether a run may create missing
	// monthly partitions instead of aborting.
	AutoExtendPartitions bool

	// CategoryPrefixLen is how many leading stock-code characters form a
	// product category in the category analysis view.
	CategoryPrefixLen int

	// ServerAddr is the listen address of the status API.
	ServerAddr string
}

// Config is everything a command needs to run the loader.
type Config struct {
	DB       db.Config
	Pipeline Pipeline
}

func defaultPipeline() Pipeline {
	return Pipeline{
		RulesPath:            "",
		AutoExtendPartitions: true,
		CategoryPrefixLen:    3,
		ServerAddr:           ":8080",
	}
}

// Load reads config.yaml from configPath, falling back to defaults plus
// environment overrides when the file is absent.
func Load(configPath string) (Config, error) {
	cfg := Config{
		DB:       db.DefaultConfig(),
		Pipeline: defaultPipeline(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()         // allow environment overrides
	v.SetEnvPrefix("RETAIL") // map env vars like RETAIL_DATABASE.HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("pipeline.rules_path")
	v.BindEnv("pipeline.auto_extend_partitions")
	v.BindEnv("pipeline.category_prefix_len")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("pipeline.rules_path") {
		cfg.Pipeline.RulesPath = v.GetString("pipeline.rules_path")
	}
	if v.IsSet("pipeline.auto_extend_partitions") {
		cfg.Pipeline.AutoExtendPartitions = v.GetBool("pipeline.auto_extend_partitions")
	}
	if v.IsSet("pipeline.category_prefix_len") {
		cfg.Pipeline.CategoryPrefixLen = v.GetInt("pipeline.category_prefix_len")
	}
	if v.IsSet("server.addr") {
		cfg.Pipeline.ServerAddr = v.GetString("server.addr")
	}

	if cfg.Pipeline.CategoryPrefixLen < 1 {
		return Config{}, fmt.Errorf("pipeline.category_prefix_len must be positive, got %d", cfg.Pipeline.CategoryPrefixLen)
	}

	return cfg, nil
}
