//nolint:lll // struct tags can't be split
package qadir

import (
	"crypto/tls"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"log/slog"
	"net/http"
	"time"
)

const (
	EnvvarSetEnvPrefix     = "QADIR_ENV_PREFIX"
	DefaultEnvPrefix       = "QD"
	DefaultAppName         = "Qadir"
	DefaultEnvironment     = EnvironmentDevelopment
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
	EnvironmentTest        = "test"

	DefaultDatabaseType          = dbTypeMongoDB
	DefaultDatabaseURI           = "mongodb://127.0.0.1:27017"
	DefaultDatabaseNameProd      = "qadir-main"
	DefaultDatabaseNameDev       = "qadir-dev"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix = "qadir"
	DefaultRedisLogLevel  = slog.LevelInfo

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged | discordgo.IntentsGuildPresences

	DefaultAPIListen               = "127.0.0.1:5000"
	DefaultAPILogLevel             = slog.LevelInfo
	DefaultAPITLSMinVersion        = tls.VersionTLS12
	DefaultReadTimeout             = 5 * time.Second
	DefaultReadHeaderTimeout       = 5 * time.Second
	DefaultWriteTimeout            = 10 * time.Second
	DefaultIdleTimeout             = 30 * time.Second
	defaultListenNetwork           = "tcp"
	DefaultAPICORSAllowCredentials = false

	DefaultProposalCheckInterval = time.Hour
	DefaultProposalVotingPeriod  = 24 * time.Hour
	DefaultProposalCooldown      = 5 * time.Minute

	DefaultEventCacheTTL = time.Hour
	DefaultEventCooldown = 30 * time.Second

	DefaultHangarCacheTTL    = time.Hour
	DefaultHangarMaxInterval = time.Minute

	DefaultActivityLockTTL = 5 * time.Second
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		xRequestIDHeader,
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

type Config struct {
	// App identifies the running application
	App *AppConfig `yaml:"app" mapstructure:"app" json:"app"`

	// Environment is one of 'production', 'development' or 'test'
	Environment string `yaml:"environment" mapstructure:"environment" json:"environment" binding:"oneof=production development test"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// connect its backing services. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Redis configures the key-value store
	Redis *RedisConfig `yaml:"redis" mapstructure:"redis" json:"redis"`

	// Database configures the document store
	Database *DatabaseConfig `yaml:"database" mapstructure:"database" json:"database"`

	// API configures the admin API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	Proposals *ProposalsConfig `yaml:"proposals" mapstructure:"proposals" json:"proposals"`
	Events    *EventsConfig    `yaml:"events" mapstructure:"events" json:"events"`
	Hangar    *HangarConfig    `yaml:"hangar" mapstructure:"hangar" json:"hangar"`
	Activity  *ActivityConfig  `yaml:"activity" mapstructure:"activity" json:"activity"`
	Voice     *VoiceConfig     `yaml:"voice" mapstructure:"voice" json:"voice"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DatabaseName returns the configured database name, or the
// environment's default when none is set.
func (c Config) DatabaseName() string {
	if c.Database != nil && c.Database.Name != "" {
		return c.Database.Name
	}
	if c.Environment == EnvironmentProduction {
		return DefaultDatabaseNameProd
	}
	return DefaultDatabaseNameDev
}

// AppConfig describes the running application
type AppConfig struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	// Version is shown in /info and in the bot's custom status.
	// Defaults to the build's Version.
	Version string `yaml:"version" mapstructure:"version" json:"version"`

	// Debug forces the main log level to DEBUG
	Debug bool `yaml:"debug" mapstructure:"debug" json:"debug"`

	// DeveloperID is mentioned in /info, if set
	DeveloperID string `yaml:"developer_id" mapstructure:"developer_id" json:"developer_id"`
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands
	// for modules without their own guild list. Leave empty for those
	// commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	// Activity tracking needs the privileged presence intent.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus overrides the default custom status
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	httpClient *http.Client
}

// RedisConfig configures the connection to Redis. URL takes precedence
// over Addr/Username/Password/DB.
type RedisConfig struct {
	URL      string         `yaml:"url" mapstructure:"url" json:"url" log:"[redacted]"`
	Addr     string         `yaml:"addr" mapstructure:"addr" json:"addr" binding:"required_without=URL"`
	Username string         `yaml:"username" mapstructure:"username" json:"username"`
	Password string         `yaml:"password" mapstructure:"password" json:"password" log:"[redacted]"`
	DB       int            `yaml:"db" mapstructure:"db" json:"db" binding:"min=0"`
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// KeyPrefix is prepended to every key, separated by ':'
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix" json:"key_prefix" binding:"required"`
}

// DatabaseConfig configures the document store
type DatabaseConfig struct {
	// Type is 'mongodb', 'sqlite' or 'postgres'
	Type string `yaml:"type" mapstructure:"type" json:"type" binding:"oneof=mongodb sqlite postgres"`

	// URI is the mongodb connection string, the sqlite file path, or the
	// postgres DSN
	URI string `yaml:"uri" mapstructure:"uri" json:"uri" log:"[redacted]" binding:"required"`

	// Name of the mongodb database. See Config.DatabaseName
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// SlowThreshold is the duration threshold for identifying slow queries
	SlowThreshold time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold" json:"slow_threshold"`
}

// APIConfig configures the admin API server
type APIConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Bearer token required for /api routes. Unauthenticated when empty.
	Secret string `yaml:"secret" mapstructure:"secret" json:"secret" log:"[redacted]"`

	// Configuration for SSL/TLS. Plain HTTP is served when no cert is set.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"required_if=Enabled true"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"required_if=Enabled true"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"required_if=Enabled true"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"required_if=Enabled true"`

	// Development allows all origins and registers pprof under /debug
	Development bool `yaml:"development" mapstructure:"development" json:"development"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	defaultMethods := make([]string, len(DefaultCORSAllowMethods))
	copy(defaultMethods, DefaultCORSAllowMethods)

	defaultHeaders := make([]string, len(DefaultCORSAllowHeaders))
	copy(defaultHeaders, DefaultCORSAllowHeaders)

	defaultExpose := make([]string, len(DefaultCORSExposeHeaders))
	copy(defaultExpose, DefaultCORSExposeHeaders)

	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     defaultMethods,
		AllowHeaders:     defaultHeaders,
		ExposeHeaders:    defaultExpose,
		MaxAge:           DefaultCORSMaxAge,
		AllowCredentials: DefaultAPICORSAllowCredentials,
	}
}

// ProposalsConfig configures the /propose command and its polls
type ProposalsConfig struct {
	// Guilds the /propose command is registered in
	Guilds []string `yaml:"guilds" mapstructure:"guilds" json:"guilds"`

	// Channels proposal threads are created in. The first entry is used.
	Channels []string `yaml:"channels" mapstructure:"channels" json:"channels"`

	// Roles allowed to submit proposals
	Roles []string `yaml:"roles" mapstructure:"roles" json:"roles"`

	// CheckInterval is how often expired polls are closed
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval" json:"check_interval" binding:"min=1s"`

	// VotingPeriod is how long a poll stays open
	VotingPeriod time.Duration `yaml:"voting_period" mapstructure:"voting_period" json:"voting_period" binding:"min=1s"`

	// Cooldown between two /propose invocations by the same user. 0=disabled
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown" json:"cooldown"`
}

// EventsConfig configures loot tracking events
type EventsConfig struct {
	Guilds []string `yaml:"guilds" mapstructure:"guilds" json:"guilds"`

	// Channels /event create may be used in
	Channels []string `yaml:"channels" mapstructure:"channels" json:"channels"`

	// CacheTTL is how long an event stays cached in redis
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" json:"cache_ttl" binding:"min=1s"`

	// Cooldown between two /event create invocations by the same user. 0=disabled
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown" json:"cooldown"`
}

// HangarConfig configures the executive hangar status embeds
type HangarConfig struct {
	Guilds []string `yaml:"guilds" mapstructure:"guilds" json:"guilds"`

	// CacheTTL is how long the list of tracked embeds stays cached
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" json:"cache_ttl" binding:"min=1s"`

	// MaxInterval caps the time between two embed updates
	MaxInterval time.Duration `yaml:"max_interval" mapstructure:"max_interval" json:"max_interval" binding:"min=1s"`
}

// ActivityConfig configures application usage tracking
type ActivityConfig struct {
	// Guilds presence updates are accepted from
	Guilds []string `yaml:"guilds" mapstructure:"guilds" json:"guilds"`

	// Applications (by discord application ID) whose usage is recorded
	Applications []string `yaml:"applications" mapstructure:"applications" json:"applications"`

	// LockTTL is how long a start/stop transition is locked for
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl" json:"lock_ttl" binding:"min=1s"`
}

// VoiceConfig configures the voice channels the bot idles in
type VoiceConfig struct {
	Channels []string `yaml:"channels" mapstructure:"channels" json:"channels"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	redisLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	redisLogLevel.Set(DefaultRedisLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		App: &AppConfig{
			Name:    DefaultAppName,
			Version: Version,
		},
		Environment:     DefaultEnvironment,
		LogLevel:        mainLogLevel,
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Redis: &RedisConfig{
			Addr:      DefaultRedisAddr,
			KeyPrefix: DefaultRedisKeyPrefix,
			LogLevel:  redisLogLevel,
		},
		Database: &DatabaseConfig{
			Type:          DefaultDatabaseType,
			URI:           DefaultDatabaseURI,
			LogLevel:      dbLogLevel,
			SlowThreshold: DefaultDatabaseSlowThreshold,
		},
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultAPITLSMinVersion,
			},
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
		Proposals: &ProposalsConfig{
			CheckInterval: DefaultProposalCheckInterval,
			VotingPeriod:  DefaultProposalVotingPeriod,
			Cooldown:      DefaultProposalCooldown,
		},
		Events: &EventsConfig{
			CacheTTL: DefaultEventCacheTTL,
			Cooldown: DefaultEventCooldown,
		},
		Hangar: &HangarConfig{
			CacheTTL:    DefaultHangarCacheTTL,
			MaxInterval: DefaultHangarMaxInterval,
		},
		Activity: &ActivityConfig{
			LockTTL: DefaultActivityLockTTL,
		},
		Voice: &VoiceConfig{},
	}
}
