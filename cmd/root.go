package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/iamwookie/qadir-bot/qadir"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
)

const (
	configFileProd = "config"
	configFileDev  = "config.dev"
	configFileType = "toml"
)

var (
	cfg        = qadir.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "qadir [flags]",
	Short:         "Qadir is a Discord bot for proposals, loot events and hangar timers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(viper.GetViper(), configFile, cfg)
	},
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := levelStringToLevelVar(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		return lvl, nil
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("error: %v", err)
		cancel()
		os.Exit(1)
	}
}

// envPrefix returns the environment variable prefix, QD unless
// overridden by QADIR_ENV_PREFIX
func envPrefix() string {
	if prefix := os.Getenv(qadir.EnvvarSetEnvPrefix); prefix != "" {
		return prefix
	}
	return qadir.DefaultEnvPrefix
}

// environment returns the environment named by {prefix}_ENVIRONMENT,
// defaulting to development
func environment() string {
	if env := os.Getenv(envPrefix() + "_ENVIRONMENT"); env != "" {
		return env
	}
	return qadir.DefaultEnvironment
}

// loadConfig reads the config file, .env (in development) and the
// environment into v, then decodes the result into c. A missing
// config file is only an error when one was requested explicitly.
func loadConfig(v *viper.Viper, file string, c *qadir.Config) error {
	env := environment()
	if env == qadir.EnvironmentDevelopment {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading .env: %w", err)
		}
	}

	setDefaults(v)

	v.SetConfigType(configFileType)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		name := configFileProd
		if env == qadir.EnvironmentDevelopment {
			name = configFileDev
		}
		v.SetConfigName(name)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.Unmarshal(
		c,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				LevelToStringHookFunc(),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("error decoding config: %w", err)
	}
	return nil
}

// setDefaults registers every config key, so each can be set from the
// environment
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", qadir.DefaultAppName)
	v.SetDefault("app.version", qadir.Version)
	v.SetDefault("app.debug", false)
	v.SetDefault("app.developer_id", "")
	v.SetDefault("environment", qadir.DefaultEnvironment)
	v.SetDefault("log_level", qadir.DefaultLogLevel.String())
	v.SetDefault("startup_timeout", qadir.DefaultStartupTimeout)
	v.SetDefault("shutdown_timeout", qadir.DefaultShutdownTimeout)

	// Discord config
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.application_id", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.custom_status", "")
	v.SetDefault("discord.log_level", qadir.DefaultDiscordLogLevel.String())
	v.SetDefault(
		"discord.discordgo_log_level",
		qadir.DefaultDiscordgoLogLevel.String(),
	)
	v.SetDefault("discord.gateway_intents", int(qadir.DefaultDiscordGatewayIntent))

	// Redis config
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", qadir.DefaultRedisAddr)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", qadir.DefaultRedisKeyPrefix)
	v.SetDefault("redis.log_level", qadir.DefaultRedisLogLevel.String())

	// Database config
	v.SetDefault("database.type", qadir.DefaultDatabaseType)
	v.SetDefault("database.uri", qadir.DefaultDatabaseURI)
	v.SetDefault("database.name", "")
	v.SetDefault("database.log_level", qadir.DefaultDatabaseLogLevel.String())
	v.SetDefault("database.slow_threshold", qadir.DefaultDatabaseSlowThreshold)

	// API config
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", qadir.DefaultAPIListen)
	v.SetDefault("api.listen_network", "tcp")
	v.SetDefault("api.secret", "")
	v.SetDefault("api.development", false)
	v.SetDefault("api.log_level", qadir.DefaultAPILogLevel.String())
	v.SetDefault("api.read_timeout", qadir.DefaultReadTimeout)
	v.SetDefault("api.read_header_timeout", qadir.DefaultReadHeaderTimeout)
	v.SetDefault("api.write_timeout", qadir.DefaultWriteTimeout)
	v.SetDefault("api.idle_timeout", qadir.DefaultIdleTimeout)

	// API: SSL config
	v.SetDefault("api.ssl.cert", "")
	v.SetDefault("api.ssl.key", "")
	v.SetDefault("api.ssl.tls_min_version", qadir.DefaultAPITLSMinVersion)

	// API: CORS config
	v.SetDefault("api.cors.allow_origins", []string{})
	v.SetDefault("api.cors.allow_methods", qadir.DefaultCORSAllowMethods)
	v.SetDefault("api.cors.allow_headers", qadir.DefaultCORSAllowHeaders)
	v.SetDefault("api.cors.expose_headers", qadir.DefaultCORSExposeHeaders)
	v.SetDefault("api.cors.allow_credentials", qadir.DefaultAPICORSAllowCredentials)
	v.SetDefault("api.cors.max_age", qadir.DefaultCORSMaxAge)

	// Modules
	v.SetDefault("proposals.guilds", []string{})
	v.SetDefault("proposals.channels", []string{})
	v.SetDefault("proposals.roles", []string{})
	v.SetDefault("proposals.check_interval", qadir.DefaultProposalCheckInterval)
	v.SetDefault("proposals.voting_period", qadir.DefaultProposalVotingPeriod)
	v.SetDefault("proposals.cooldown", qadir.DefaultProposalCooldown)

	v.SetDefault("events.guilds", []string{})
	v.SetDefault("events.channels", []string{})
	v.SetDefault("events.cache_ttl", qadir.DefaultEventCacheTTL)
	v.SetDefault("events.cooldown", qadir.DefaultEventCooldown)

	v.SetDefault("hangar.guilds", []string{})
	v.SetDefault("hangar.cache_ttl", qadir.DefaultHangarCacheTTL)
	v.SetDefault("hangar.max_interval", qadir.DefaultHangarMaxInterval)

	v.SetDefault("activity.guilds", []string{})
	v.SetDefault("activity.applications", []string{})
	v.SetDefault("activity.lock_ttl", qadir.DefaultActivityLockTTL)

	v.SetDefault("voice.channels", []string{})
}

//nolint:gochecknoinits // registers the persistent flags
func init() {
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use (default config.toml, or config.dev.toml in development)",
	)
}
