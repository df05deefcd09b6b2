package qadir

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/iamwookie/qadir-bot/qadir.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout
)

// Qadir is the bot. It owns the discord session, the cache and the
// store, and runs the background loops for hangar embeds and proposals.
type Qadir struct {
	config *Config

	// Standard logger, tagged per component where needed
	logger *slog.Logger

	// Handler to use for the above
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// Redis, for caching and short-lived state. Connected in Run
	// unless already set.
	cache *Cache

	// Document store. Opened in Run unless already set.
	store Store

	api     *API
	metrics *metrics

	commands map[string]*slashCommand

	// getInteractionHandlerFunc returns the InteractionHandler for a
	// received interaction. Tests replace it.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// signalStop enables an explicit stop signal to be sent to the bot
	signalStop chan struct{}

	// signalReady receives a value once Run has finished starting up
	signalReady chan struct{}

	// initialised is closed when the gateway Ready event has been handled
	initialised chan struct{}
	initOnce    sync.Once

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time

	// locks serializes read-modify-write cycles on events and proposals
	locks *keyedMutex

	// hangarLimiter paces hangar embed edits
	hangarLimiter *rate.Limiter

	now func() time.Time
}

func newLogHandler(level slog.Leveler, name string) slog.Handler {
	h := tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     level,
			AddSource: true,
		},
	)
	if name == "" {
		return h
	}
	return h.WithAttrs([]slog.Attr{slog.String(loggerNameKey, name)})
}

// New creates a Qadir from config. Backing services aren't contacted
// until Run.
func New(config *Config) (*Qadir, error) {
	var errs []error

	switch config.Database.Type {
	case dbTypeMongoDB, dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'mongodb', 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.App.Debug {
		config.LogLevel.Set(slog.LevelDebug)
	}
	if config.App.Version == "" {
		config.App.Version = Version
	}

	q := &Qadir{
		config:        config,
		signalReady:   make(chan struct{}, 1),
		initialised:   make(chan struct{}),
		locks:         newKeyedMutex(),
		hangarLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		metrics:       newMetrics(),
		now:           time.Now,
	}

	q.logHandler = newLogHandler(config.LogLevel, "")
	q.logger = slog.New(q.logHandler)
	slog.SetDefault(q.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel, ""),
	)
	redis.SetLogger(newRedisLogger(newLogHandler(config.Redis.LogLevel, "")))

	config.Discord.httpClient = config.HTTPClient
	q.discord = newDiscord(config.Discord, slog.New(newLogHandler(config.Discord.LogLevel, "discord")))
	q.metrics.registerDiscord(q.discord)

	q.commands = q.buildCommands()
	q.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		return newGatewayHandler(q.discord.session, i, q.logger.With(loggerNameKey, "interaction"))
	}

	api, err := newAPI(q, config.API)
	errs = append(errs, err)
	q.api = api

	return q, errors.Join(errs...)
}

func (q *Qadir) ValidateConfig() error {
	return structValidator.Struct(q.config)
}

// Cache returns the bot's redis cache, connecting it if needed
func (q *Qadir) Cache(ctx context.Context) (*Cache, error) {
	if q.cache != nil {
		return q.cache, nil
	}
	c, err := NewCache(q.config.Redis, newLogHandler(q.config.Redis.LogLevel, ""))
	if err != nil {
		return nil, err
	}
	if err = c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	q.cache = c
	q.metrics.registerCache(c)
	return c, nil
}

// initBackends connects redis and the store concurrently
func (q *Qadir) initBackends(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			_, err := q.Cache(gctx)
			return err
		},
	)
	g.Go(
		func() error {
			if q.store != nil {
				return q.store.Ping(gctx)
			}
			s, err := OpenStore(gctx, q.config, newLogHandler(q.config.Database.LogLevel, ""))
			if err != nil {
				return fmt.Errorf("error opening store: %w", err)
			}
			q.store = s
			return nil
		},
	)
	return g.Wait()
}

// customStatus is shown as the bot's discord status
func (q *Qadir) customStatus() string {
	if q.config.Discord.CustomStatus != "" {
		return q.config.Discord.CustomStatus
	}
	return fmt.Sprintf("🌐 v%s • /help", strings.TrimPrefix(q.config.App.Version, "v"))
}

// Run starts the bot and blocks until ctx is cancelled (or a stop
// signal is received), then shuts down.
func (q *Qadir) Run(ctx context.Context) error {
	// prevents concurrent runs
	q.runMu.Lock()
	defer q.runMu.Unlock()

	q.signalStop = make(chan struct{}, 1)
	q.startedAt = q.now()
	logger := q.logger

	if err := q.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", q.config))

	// runtime context, canceling it triggers a graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-q.signalStop:
			q.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, q.config.StartupTimeout)
	defer startCancel()

	if err := q.initBackends(startCtx); err != nil {
		logger.ErrorContext(ctx, "init error", tint.Err(err))
		return errors.Join(err, q.closeBackends(context.Background()))
	}
	logger.InfoContext(ctx, "connected backing services")

	runtimeWG := &sync.WaitGroup{}

	if err := q.initDiscordSession(ctx, runtimeWG); err != nil {
		logger.ErrorContext(ctx, "error creating discord session", tint.Err(err))
		return errors.Join(err, q.closeBackends(context.Background()))
	}

	if err := q.discordInit(ctx); err != nil {
		return errors.Join(err, q.closeBackends(context.Background()))
	}

	if _, err := q.RegisterSlashCommands(discordgo.WithContext(startCtx)); err != nil {
		logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
	}

	if q.config.API.Enabled {
		runtimeWG.Add(1)
		go func() {
			defer runtimeWG.Done()
			httpErr := q.api.Serve(ctx)
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				q.logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
			}
		}()
	}

	runtimeWG.Add(2)
	go func() {
		defer runtimeWG.Done()
		q.runHangarLoop(ctx)
	}()
	go func() {
		defer runtimeWG.Done()
		q.runProposalLoop(ctx)
	}()

	select {
	case q.signalReady <- struct{}{}:
		q.logger.InfoContext(ctx, "sent ready signal")
	default:
	}

	// block until something cancels the runtime context, generally
	// an interrupt
	<-ctx.Done()

	return q.shutdown(runtimeWG)
}

// Stop asks a running bot to shut down
func (q *Qadir) Stop() {
	select {
	case q.signalStop <- struct{}{}:
	default:
	}
}

// discordInit opens the discord websocket connection and sets the
// bot's custom status
func (q *Qadir) discordInit(ctx context.Context) error {
	q.logger.InfoContext(ctx, "connecting to discord")
	if err := q.discord.session.Open(); err != nil {
		q.logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		return fmt.Errorf("error connecting to discord: %w", err)
	}
	go func() {
		if err := q.discord.session.UpdateCustomStatus(q.customStatus()); err != nil {
			q.logger.Error("error updating discord status", tint.Err(err))
		}
	}()
	return nil
}

func (q *Qadir) initDiscordSession(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	logger := q.logger.With(loggerNameKey, "discord_session")

	if q.discord.session == nil {
		disc, err := q.discord.newSession()
		if err != nil {
			return fmt.Errorf("error creating discord session: %w", err)
		}
		q.discord.session = disc
	}

	ctx = WithLogger(ctx, logger)

	for _, remove := range q.discord.discordgoRemoveHandlerFuncs {
		remove()
	}

	q.discord.session.SetIdentify(
		discordgo.Identify{
			Intents: q.config.Discord.GatewayIntents,
			Presence: discordgo.GatewayStatusUpdate{
				Status: string(discordgo.StatusOnline),
				Game: discordgo.Activity{
					Name:  "Custom Status",
					Type:  discordgo.ActivityTypeCustom,
					State: q.customStatus(),
				},
			},
		},
	)

	// handlers that touch the network run in their own goroutine, so
	// they don't hold up the gateway event loop
	spawn := func(f func()) {
		runtimeWG.Add(1)
		go func() {
			defer runtimeWG.Done()
			defer func() {
				if rc := recover(); rc != nil {
					q.handleRecover(ctx, rc)
				}
			}()
			f()
		}()
	}

	q.discord.discordgoRemoveHandlerFuncs = []func(){
		q.discord.session.AddHandler(q.discord.handlerConnect()),
		q.discord.session.AddHandler(q.discord.handlerDisconnect()),
		q.discord.session.AddHandler(
			func(s *discordgo.Session, r *discordgo.Ready) {
				q.handleReady(ctx, r)
				spawn(func() { q.connectVoiceChannels(ctx) })
			},
		),
		q.discord.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := q.getInteractionHandlerFunc(ctx, i)
				spawn(func() { q.handleInteraction(ctx, handler) })
			},
		),
		q.discord.session.AddHandler(
			func(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
				spawn(func() { q.handlePresenceUpdate(ctx, p) })
			},
		),
		q.discord.session.AddHandler(
			func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
				spawn(func() { q.handleVoiceStateUpdate(ctx, v) })
			},
		),
	}
	return nil
}

// handleReady records the bot's user and marks the bot initialised
func (q *Qadir) handleReady(ctx context.Context, r *discordgo.Ready) {
	if r.User != nil {
		q.discord.setBotUserID(r.User.ID)
	}
	q.discord.logger.InfoContext(
		ctx,
		"ready",
		"session_id", r.SessionID,
		"guilds", len(r.Guilds),
	)
	q.markInitialised()
}

func (q *Qadir) markInitialised() {
	q.initOnce.Do(func() { close(q.initialised) })
}

// WaitUntilInitialised blocks until the gateway Ready event has been
// handled, or ctx is done.
func (q *Qadir) WaitUntilInitialised(ctx context.Context) error {
	select {
	case <-q.initialised:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown closes the discord session, waits for in-flight work until
// the shutdown timeout, then closes the API and backing services.
func (q *Qadir) shutdown(runtimeWG *sync.WaitGroup) error {
	shutdownStart := time.Now()
	shutdownDeadline := shutdownStart.Add(q.config.ShutdownTimeout)
	q.logger.Warn(
		"shutting down",
		"shutdown_timeout", q.config.ShutdownTimeout,
		"shutdown_deadline", shutdownDeadline,
	)

	closeCtx, closeCancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer closeCancel()

	var errs []error
	if q.discord.session != nil {
		if err := q.discord.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing discord session: %w", err))
		}
	}

	if q.api != nil {
		if err := q.api.Shutdown(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down api: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		runtimeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("finished handling in-flight requests", "duration", time.Since(shutdownStart))
	case <-closeCtx.Done():
		errs = append(errs, errors.New("in-flight requests did not finish in time"))
	}

	errs = append(errs, q.closeBackends(closeCtx))
	q.logger.Info("shutdown complete", "duration", time.Since(shutdownStart))
	return errors.Join(errs...)
}

func (q *Qadir) closeBackends(ctx context.Context) error {
	var errs []error
	if q.cache != nil {
		if err := q.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing redis: %w", err))
		}
	}
	if q.store != nil {
		if err := q.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handleInteraction dispatches an interaction to its handler, by type.
// Handler errors are reported to the user.
func (q *Qadir) handleInteraction(ctx context.Context, h InteractionHandler) {
	i := h.GetInteraction()
	logger := h.Logger()
	ctx = WithLogger(ctx, logger)

	defer func() {
		if rc := recover(); rc != nil {
			q.handleRecover(ctx, rc)
		}
	}()

	user := getDiscordUser(i)
	if user == nil {
		logger.ErrorContext(ctx, "no user found in interaction", "interaction", structToSlogValue(i))
		return
	}
	if user.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}
	logger.InfoContext(ctx, "received new interaction")

	start := time.Now()
	var name string
	var err error

	switch i.Type {
	case discordgo.InteractionPing:
		err = h.Respond(ctx, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		name = i.ApplicationCommandData().Name
		err = q.runCommand(ctx, h)
	case discordgo.InteractionApplicationCommandAutocomplete:
		name = i.ApplicationCommandData().Name
		if cmd, ok := q.commands[name]; ok && cmd.autocomplete != nil {
			err = cmd.autocomplete(ctx, h)
		} else {
			err = fmt.Errorf("no autocomplete for %q", name)
		}
	case discordgo.InteractionModalSubmit:
		name = i.ModalSubmitData().CustomID
		switch name {
		case customIDProposalCreate:
			err = q.handleProposalSubmit(ctx, h)
		case customIDEventCreate:
			err = q.handleEventCreateSubmit(ctx, h)
		default:
			err = fmt.Errorf("unknown modal %q", name)
		}
	case discordgo.InteractionMessageComponent:
		name = i.MessageComponentData().CustomID
		switch {
		case strings.HasPrefix(name, customIDProposalVote+":"):
			err = q.handleProposalVote(ctx, h)
			name = customIDProposalVote
		case name == customIDEventJoinSelect:
			err = q.handleEventJoinSelect(ctx, h)
		default:
			err = fmt.Errorf("unknown component %q", name)
		}
	default:
		err = fmt.Errorf("unhandled interaction type %s", i.Type)
	}

	typ := i.Type.String()
	q.metrics.interactions.WithLabelValues(typ, name).Inc()
	q.metrics.interactionTimes.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	q.metrics.interactionErrs.WithLabelValues(typ, name).Inc()
	if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
		logger.ErrorContext(ctx, "error handling autocomplete", tint.Err(err))
		return
	}
	respondError(ctx, h, err)
}

func (*Qadir) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	switch v := rc.(type) {
	case error:
		logger.ErrorContext(ctx, "recovered from panic", tint.Err(v), "stack_trace", stackTrace)
	case string:
		logger.ErrorContext(ctx, "recovered from panic", tint.Err(errors.New(v)), "stack_trace", stackTrace)
	default:
		logger.ErrorContext(ctx, "recovered from panic", "panic_arg", rc, "stack_trace", stackTrace)
	}
}
