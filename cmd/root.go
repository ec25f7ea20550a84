package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	endpoint  string
	accessID  string
	accessKey string
	redisURL  string
	dbPath    string
	modesFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sumo-relay",
	Short: "Threat Response enrichment relay for Sumo Logic",
	Long: `Sumo-Relay enriches threat-intelligence observables against the Sumo Logic
Search Job API and returns normalized CTIM entities.

Features:
- Asynchronous search-job orchestration with bounded polling
- Sighting extraction from raw log messages
- Judgement/verdict derivation from CrowdStrike threat-intel lookups
- Relay HTTP endpoints (/observe, /deliberate, /refer, /health)
- Redis Streams summaries, SQLite audit trail, Prometheus metrics`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sumo-relay.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Sumo Logic API endpoint, e.g. https://api.us2.sumologic.com/api/v1")
	rootCmd.PersistentFlags().StringVar(&accessID, "access-id", "", "Sumo Logic access id")
	rootCmd.PersistentFlags().StringVar(&accessKey, "access-key", "", "Sumo Logic access key")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for enrichment summaries (empty disables)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/sumo-relay.db", "SQLite audit database path (empty disables)")
	rootCmd.PersistentFlags().StringVar(&modesFile, "modes-file", "", "YAML file with search mode overrides")

	// Bind flags to viper
	viper.BindPFlag("sumo.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("sumo.access_id", rootCmd.PersistentFlags().Lookup("access-id"))
	viper.BindPFlag("sumo.access_key", rootCmd.PersistentFlags().Lookup("access-key"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("modes.file", rootCmd.PersistentFlags().Lookup("modes-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".sumo-relay" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sumo-relay")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("limits.entities", 100)
	viper.SetDefault("limits.job_max_time", "60s")
	viper.SetDefault("enrich.workers", 4)
	viper.SetDefault("serve.bind", "127.0.0.1:8080")
	viper.SetDefault("database.path", "./data/sumo-relay.db")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Sumo: SumoConfig{
			Endpoint:  viper.GetString("sumo.endpoint"),
			AccessID:  viper.GetString("sumo.access_id"),
			AccessKey: viper.GetString("sumo.access_key"),
		},
		Limits: LimitsConfig{
			Entities:   viper.GetInt("limits.entities"),
			JobMaxTime: viper.GetDuration("limits.job_max_time"),
		},
		Serve: ServeConfig{
			Bind:  viper.GetString("serve.bind"),
			Token: viper.GetString("serve.token"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Modes: ModesConfig{
			File: viper.GetString("modes.file"),
		},
		Enrich: EnrichConfig{
			Workers: viper.GetInt("enrich.workers"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Sumo     SumoConfig     `mapstructure:"sumo"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Modes    ModesConfig    `mapstructure:"modes"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
}

type SumoConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessID  string `mapstructure:"access_id"`
	AccessKey string `mapstructure:"access_key"`
}

type LimitsConfig struct {
	Entities   int           `mapstructure:"entities"`
	JobMaxTime time.Duration `mapstructure:"job_max_time"`
}

type ServeConfig struct {
	Bind  string `mapstructure:"bind"`
	Token string `mapstructure:"token"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ModesConfig struct {
	File string `mapstructure:"file"`
}

type EnrichConfig struct {
	Workers int `mapstructure:"workers"`
}
