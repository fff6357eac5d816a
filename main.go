package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"taskboard-api/api"
	"taskboard-api/calendar"
	"taskboard-api/domain"
	"taskboard-api/notify"
	"taskboard-api/storage"
	"taskboard-api/taskstore"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Tasks:        os.Getenv("TASKS_TABLE"),
		Dependencies: os.Getenv("DEPENDENCIES_TABLE"),
		Categories:   os.Getenv("CATEGORIES_TABLE"),
		Profiles:     os.Getenv("PROFILES_TABLE"),
		Integrations: os.Getenv("INTEGRATIONS_TABLE"),
	}
	reminderQueue := os.Getenv("REMINDER_QUEUE")
	if connStr == "" || tables.Tasks == "" || tables.Dependencies == "" || tables.Categories == "" ||
		tables.Profiles == "" || tables.Integrations == "" || reminderQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tables, reminderQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions())
	cacheTTL := 5 * time.Minute
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cache := storage.NewCache(store, rc, cacheTTL)
	feed := storage.NewNotifier(rc, envOr("CHANGES_CHANNEL", "taskboard:changes"), logger)

	rows := cachedRows{Storage: store, cache: cache}
	tasks := taskstore.New(rows, feed, cache, store, logger, taskstore.Options{})
	categories := taskstore.NewCategories(rows, feed, cache)

	mailer := notify.NewHTTPMailer(os.Getenv("MAIL_FUNCTION_URL"), nil)
	inviter := notify.NewDispatcher(mailer, logger)

	cal := calendar.New(calendarConfig(), nil, store, store,
		calendar.NewRedisStateStore(rc, 10*time.Minute), logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.DecompressRequests())

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()
	if log.GetLevel() == log.DebugLevel {
		pprof.Register(e)
	}

	api.Register(e, api.Deps{
		Tasks:      tasks,
		Categories: categories,
		Profiles:   store,
		Calendar:   cal,
		Inviter:    inviter,
		Feed:       feed,
		Auth:       newAuth(),
		Logger:     logger,
	})

	// Reminder worker shares the process; reminders are best-effort and
	// die with it.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	sender := notify.NewMailReminderSender(mailer, notify.NewProfileResolver(store))
	go notify.NewWorker(store, sender, 15*time.Second, logger).Run(workerCtx)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

// cachedRows reads through the cache and writes through storage, so the
// aggregate store sees one coherent Rows collaborator.
type cachedRows struct {
	*storage.Storage
	cache *storage.Cache
}

func (r cachedRows) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	return r.cache.FetchTasks(ctx, userID)
}

func (r cachedRows) FetchDependencies(ctx context.Context, userID string) ([]domain.Dependency, error) {
	return r.cache.FetchDependencies(ctx, userID)
}

func (r cachedRows) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return r.cache.FetchCategories(ctx, userID)
}

func newAuth() *api.Auth {
	if mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode != "" {
		if mode != "hs256" {
			log.Fatal("unsupported LOCAL_AUTH_MODE value")
		}
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			log.Fatal("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		return api.NewAuth(nil, api.AuthConfig{SharedSecret: []byte(secret)})
	}

	audience := os.Getenv("AUTH0_AUDIENCE")
	authDomain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || authDomain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, api.AuthConfig{
		Audience: audience,
		Issuer:   "https://" + authDomain + "/",
	})
}

// redisOptions parses REDIS_CONNECTION_STRING, accepting either a redis
// URL or the comma-separated host,password=...,ssl=... form Azure hands
// out.
func redisOptions() *redis.Options {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(redisConn)
	if err == nil {
		return opts
	}
	parts := strings.Split(redisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func calendarConfig() calendar.Config {
	tenant := envOr("MS_TENANT", "common")
	base := "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0"
	return calendar.Config{
		ClientID:        os.Getenv("MS_CLIENT_ID"),
		AuthorizeURL:    base + "/authorize",
		TokenURL:        base + "/token",
		RedirectURI:     os.Getenv("MS_REDIRECT_URI"),
		Scopes:          []string{"openid", "offline_access", "Calendars.ReadWrite"},
		SyncFunctionURL: os.Getenv("SYNC_FUNCTION_URL"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
