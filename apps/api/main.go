package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/istadmins/RotamBenim-sub000/libs/mailer"
	"github.com/istadmins/RotamBenim-sub000/libs/photos"
	"github.com/istadmins/RotamBenim-sub000/libs/places"
	"github.com/istadmins/RotamBenim-sub000/libs/route"
	"github.com/istadmins/RotamBenim-sub000/libs/suggest"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	maxPlaceNameLength         = 160
	maxPlaceFieldLength        = 120
	maxPlaceDescriptionLength  = 2000
	defaultRouteMaxStops       = 10
	writeRateLimitRequests     = 30
	writeRateLimitWindow       = time.Minute
	shareRateLimitRequests     = 5
	shareRateLimitWindow       = 10 * time.Minute
	cleanupInterval            = time.Minute
	userStateIdleTimeout       = 6 * time.Hour
	userCookieName             = "rotambenim_session"
	userSessionDuration        = 30 * 24 * time.Hour
	geocodeTimeout             = 5 * time.Second
	photoSearchTimeout         = 8 * time.Second
	listenerRetryDelay         = 5 * time.Second
	shutdownTimeout            = 10 * time.Second
	defaultPhotoQuery          = "travel landscape"
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

var defaultPhotoFallbackURLs = []string{
	"https://images.pexels.com/photos/1271619/pexels-photo-1271619.jpeg",
	"https://images.pexels.com/photos/2325446/pexels-photo-2325446.jpeg",
	"https://images.pexels.com/photos/3155666/pexels-photo-3155666.jpeg",
}

type Config struct {
	Addr                string
	Env                 string
	DatabaseURL         string
	PublicBaseURL       string
	AppSigningSecret    string
	GoogleClientID      string
	RouteMaxStops       int
	SuggestDebounce     time.Duration
	DirectionsBaseURL   string
	PexelsAPIKey        string
	PhotoFallbackURLs   []string
	PhotoCacheTTL       time.Duration
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	MapboxAccessToken   string
	GeocoderProvider    string
	ResendAPIKey        string
	MailerFromAddresses map[string]string
	LogLevel            slog.Level
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	hub       *places.Hub
	routes    *routeRegistry
	gazetteer []suggest.Entry
	geocoder  Geocoder
	photos    photos.Provider
	mailer    *mailer.Mailer
	metrics   *appMetrics

	// pickPhoto chooses an index in [0, n).
	pickPhoto func(n int) int

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	// store hooks, replaced in tests
	listPlaces             func(ctx context.Context, userID int64) ([]places.Place, error)
	insertPlaces           func(ctx context.Context, userID int64, inputs []placeInput) ([]places.Place, error)
	updatePlace            func(ctx context.Context, userID int64, placeID string, patch placePatch) (*places.Place, error)
	togglePlaceVisited     func(ctx context.Context, userID int64, placeID string) (*places.Place, error)
	deletePlace            func(ctx context.Context, userID int64, placeID string) (bool, error)
	upsertGoogleUser       func(ctx context.Context, identity GoogleIdentity) (*User, error)
	seedUserPlaces         func(ctx context.Context, userID int64, inputs []placeInput) (bool, error)
	verifyGoogleCredential func(ctx context.Context, credential string) (*GoogleIdentity, error)
}

type rateBucket struct {
	start time.Time
	count int
}

type User struct {
	ID            int64      `json:"id"`
	GoogleSubject string     `json:"-"`
	Email         string     `json:"email"`
	DisplayName   *string    `json:"displayName"`
	AvatarURL     *string    `json:"avatarUrl"`
	SeededAt      *time.Time `json:"seededAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type UserSession struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var geocoder Geocoder
	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{UserAgent: "RotamBenim-API/1.0", Client: httpClient}
	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox
	case "nominatim":
		geocoder = nominatim
	case "none":
	default:
		geocoder = &FallbackGeocoder{Primary: mapbox, Secondary: nominatim}
	}

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
	} else {
		mailProvider = mailer.NewLogProvider(logger)
	}
	logger.Info("mailer initialized", "provider", mailProvider.Name())
	mailClient := mailer.New(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()])

	photoProvider := newPhotoProvider(ctx, cfg, httpClient, logger)
	logger.Info("photo provider initialized", "provider", photoProvider.Name())

	app := newApp(cfg, db, logger)
	app.geocoder = geocoder
	app.photos = photoProvider
	app.mailer = mailClient

	app.listPlaces = app.storeListPlaces
	app.insertPlaces = app.storeInsertPlaces
	app.updatePlace = app.storeUpdatePlace
	app.togglePlaceVisited = app.storeTogglePlaceVisited
	app.deletePlace = app.storeDeletePlace
	app.upsertGoogleUser = app.storeUpsertGoogleUser
	app.seedUserPlaces = app.storeSeedUserPlaces
	app.verifyGoogleCredential = app.validateGoogleIDToken

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"route_max_stops", cfg.RouteMaxStops,
		"suggest_debounce_ms", cfg.SuggestDebounce.Milliseconds(),
		"geocoder", cfg.GeocoderProvider,
	)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			logger.Info("migrations applied")
			return
		case "backfill-locations":
			count, err := app.backfillPlaceLocations(ctx)
			if err != nil {
				logger.Error("location backfill failed", "err", err)
				os.Exit(1)
			}
			logger.Info("location backfill completed", "count", count)
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
			os.Exit(2)
		}
	}

	listener := &snapshotListener{
		dsn:        cfg.DatabaseURL,
		hub:        app.hub,
		log:        logger,
		metrics:    app.metrics,
		retryDelay: listenerRetryDelay,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	app.startCleanupLoop(gctx, cleanupInterval)
	g.Go(func() error {
		app.log.Info("starting gin API", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newApp(cfg *Config, db *sql.DB, logger *slog.Logger) *App {
	app := &App{
		cfg:         cfg,
		db:          db,
		log:         logger,
		routes:      newRouteRegistry(cfg.RouteMaxStops),
		gazetteer:   gazetteerEntries,
		metrics:     newAppMetrics(),
		pickPhoto:   rand.IntN,
		rateBuckets: make(map[string]rateBucket),
	}
	app.hub = places.NewHub(func(ctx context.Context, userID int64) ([]places.Place, error) {
		return app.listPlaces(ctx, userID)
	})
	return app
}

func newPhotoProvider(ctx context.Context, cfg *Config, client *http.Client, logger *slog.Logger) photos.Provider {
	fallback := photos.NewStaticProvider(cfg.PhotoFallbackURLs)
	if cfg.PexelsAPIKey == "" {
		return fallback
	}

	var primary photos.Provider = photos.NewPexelsProvider(cfg.PexelsAPIKey, client)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, photo cache will retry per request", "addr", cfg.RedisAddr, "err", err)
		}
		primary = photos.NewCachedProvider(primary, photos.NewRedisCache(rdb), cfg.PhotoCacheTTL, logger)
	}
	return &photos.FallbackProvider{Primary: primary, Secondary: fallback}
}

func (a *App) router() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.metricsMiddleware())
	r.Use(a.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", a.metricsHandler())

	api := r.Group("/api/v1")
	{
		api.GET("/suggestions", a.suggestionsHandler)
		api.GET("/gazetteer/countries", a.gazetteerCountriesHandler)
		api.GET("/backgrounds", a.backgroundHandler)

		auth := api.Group("/auth")
		{
			auth.POST("/google", a.googleSignInHandler)
			auth.POST("/logout", a.userLogoutHandler)
			auth.GET("/session", a.userSessionHandler)
		}

		user := api.Group("")
		user.Use(a.requireUserSession())
		{
			user.GET("/places", a.listPlacesHandler)
			user.POST("/places", a.createPlaceHandler)
			user.GET("/places/export", a.exportPlacesHandler)
			user.POST("/places/bundles/:country", a.importBundleHandler)
			user.GET("/places/:id", a.getPlaceHandler)
			user.PATCH("/places/:id", a.updatePlaceHandler)
			user.POST("/places/:id/visited", a.toggleVisitedHandler)
			user.DELETE("/places/:id", a.deletePlaceHandler)

			user.GET("/route", a.routeHandler)
			user.DELETE("/route", a.clearRouteHandler)
			user.POST("/route/toggle/:id", a.toggleRouteHandler)
			user.GET("/route/link", a.routeLinkHandler)
			user.POST("/route/share", a.shareRouteHandler)

			user.GET("/ws", a.websocketHandler)
		}
	}

	return r
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	googleClientID := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	if googleClientID == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID must be configured")
	}

	env := valueOrDefault("APP_ENV", "development")

	cfg := &Config{
		Addr:              valueOrDefault("HTTP_ADDR", ":8080"),
		Env:               env,
		DatabaseURL:       databaseURL,
		PublicBaseURL:     strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "https://rotambenim.app"), "/"),
		AppSigningSecret:  secret,
		GoogleClientID:    googleClientID,
		RouteMaxStops:     defaultRouteMaxStops,
		SuggestDebounce:   suggest.DefaultDelay,
		DirectionsBaseURL: valueOrDefault("MAPS_DIRECTIONS_BASE_URL", route.DefaultDirectionsBaseURL),
		PexelsAPIKey:      strings.TrimSpace(os.Getenv("PEXELS_API_KEY")),
		PhotoFallbackURLs: defaultPhotoFallbackURLs,
		PhotoCacheTTL:     24 * time.Hour,
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		MapboxAccessToken: strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		GeocoderProvider:  strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		ResendAPIKey:      strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "rota@mail.rotambenim.app"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "rota@rotambenim.local"),
		},
		LogLevel: slog.LevelInfo,
	}

	if raw := strings.TrimSpace(os.Getenv("ROUTE_MAX_STOPS")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("ROUTE_MAX_STOPS must be a whole number")
		}
		if parsed < 0 {
			return nil, fmt.Errorf("ROUTE_MAX_STOPS must be >= 0")
		}
		cfg.RouteMaxStops = parsed
	}

	if raw := strings.TrimSpace(os.Getenv("SUGGEST_DEBOUNCE_MS")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("SUGGEST_DEBOUNCE_MS must be a positive number")
		}
		cfg.SuggestDebounce = time.Duration(parsed) * time.Millisecond
	}

	if raw := strings.TrimSpace(os.Getenv("PHOTO_FALLBACK_URLS")); raw != "" {
		urls := make([]string, 0)
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				urls = append(urls, trimmed)
			}
		}
		cfg.PhotoFallbackURLs = urls
	}

	if raw := strings.TrimSpace(os.Getenv("PHOTO_CACHE_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("PHOTO_CACHE_TTL must be a positive duration")
		}
		cfg.PhotoCacheTTL = parsed
	}

	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("REDIS_DB must be >= 0")
		}
		cfg.RedisDB = parsed
	}

	switch cfg.GeocoderProvider {
	case "", "mapbox", "nominatim", "none":
	default:
		return nil, fmt.Errorf("GEOCODER_PROVIDER must be one of mapbox, nominatim, none")
	}

	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
		}
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.ToSlash(filepath.Join("migrations", file)))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
