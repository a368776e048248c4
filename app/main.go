package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/jobord/app/joborder"
	"github.com/umputun/jobord/app/notify"
	"github.com/umputun/jobord/app/store"
	"github.com/umputun/jobord/app/web"
)

var opts struct {
	Listen    string `short:"l" long:"listen" env:"JOBORD_LISTEN" default:":8080" description:"web server listen address"`
	BaseURL   string `long:"base-url" env:"JOBORD_BASE_URL" description:"base URL path for reverse proxy (e.g., /jobs)"`
	PublicURL string `long:"public-url" env:"JOBORD_PUBLIC_URL" description:"public address of web UI, used in notification links"`
	Hostname  string `long:"hostname" env:"JOBORD_HOSTNAME" default:"Job Orders" description:"business name shown on pages"`
	Dbg       bool   `long:"dbg" env:"JOBORD_DEBUG" description:"debug mode"`

	Store struct {
		Type           string        `long:"type" env:"TYPE" choice:"memory" choice:"local" choice:"sqlite" choice:"redis" choice:"remote" default:"local" description:"object store backend"`
		Path           string        `long:"path" env:"PATH" default:"var/jobord" description:"directory for local store, database file for sqlite"`
		RedisAddr      string        `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"redis address"`
		RedisPassword  string        `long:"redis-password" env:"REDIS_PASSWORD" description:"redis password"`
		RedisDB        int           `long:"redis-db" env:"REDIS_DB" default:"0" description:"redis database"`
		RedisNamespace string        `long:"redis-namespace" env:"REDIS_NAMESPACE" default:"jobord:" description:"redis key prefix"`
		URL            string        `long:"url" env:"URL" description:"remote blob service URL"`
		Token          string        `long:"token" env:"TOKEN" description:"remote blob service token"`
		Timeout        time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"remote blob service request timeout"`
	} `group:"store" namespace:"store" env-namespace:"JOBORD_STORE"`

	Auth struct {
		PasswordHash string `long:"password-hash" env:"PASSWORD_HASH" description:"bcrypt hash of login password, auth disabled if empty"`
	} `group:"auth" namespace:"auth" env-namespace:"JOBORD_AUTH"`

	Notify struct {
		Destinations []string      `long:"dest" env:"DEST" env-delim:"," description:"notification destinations, webhook URLs or mailto: addresses"`
		Template     string        `long:"template" env:"TEMPLATE" description:"notification message template file"`
		Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"notification timeout"`
		SMTPHost     string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort     int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS      bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		From         string        `long:"from" env:"FROM" description:"SMTP from email"`
	} `group:"notify" namespace:"notify" env-namespace:"JOBORD_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"jobord.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in MB"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max age of rotated files in days"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"JOBORD_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobord %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	st, closeStore, err := makeStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to make object store: %w", err)
	}
	defer closeStore()

	counter := &joborder.Counter{Store: st}
	cfg := web.Config{
		Orders:       joborder.NewRepository(st, counter),
		Serials:      counter,
		BaseURL:      validateBaseURL(opts.BaseURL),
		Hostname:     opts.Hostname,
		Version:      revision,
		PasswordHash: opts.Auth.PasswordHash,
	}
	if notifier := makeNotifier(); notifier != nil {
		cfg.Notifier = notifier
	}

	srv, err := web.New(cfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx, opts.Listen)
}

// makeStore creates object store for the selected backend, returns its close function
func makeStore(ctx context.Context) (store.Store, func(), error) {
	noop := func() {}
	log.Printf("[INFO] object store %s", opts.Store.Type)

	switch opts.Store.Type {
	case "memory":
		log.Printf("[WARN] memory store selected, job orders will be lost on restart")
		return store.NewMemory(), noop, nil
	case "local":
		st, err := store.NewLocal(opts.Store.Path)
		return st, noop, err
	case "sqlite":
		st, err := store.NewSQLite(opts.Store.Path)
		if err != nil {
			return nil, noop, err
		}
		return st, closer("sqlite", st.Close), nil
	case "redis":
		st, err := store.NewRedis(ctx, store.RedisParams{Addr: opts.Store.RedisAddr, Password: opts.Store.RedisPassword,
			DB: opts.Store.RedisDB, Namespace: opts.Store.RedisNamespace})
		if err != nil {
			return nil, noop, err
		}
		return st, closer("redis", st.Close), nil
	case "remote":
		if opts.Store.URL == "" {
			return nil, noop, errors.New("remote store requires --store.url")
		}
		st, err := store.NewRemote(store.RemoteParams{URL: opts.Store.URL, Token: opts.Store.Token, Timeout: opts.Store.Timeout})
		return st, noop, err
	default:
		return nil, noop, fmt.Errorf("unknown store type %q", opts.Store.Type)
	}
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Printf("[WARN] failed to close %s store: %v", name, err)
		}
	}
}

func makeNotifier() *notify.Service {
	return notify.NewService(notify.Params{
		Destinations: opts.Notify.Destinations,
		Timeout:      opts.Notify.Timeout,
		Template:     opts.Notify.Template,
		BaseURL:      strings.TrimSuffix(opts.PublicURL, "/"),
		SMTP: notify.SMTPParams{
			Host:     opts.Notify.SMTPHost,
			Port:     opts.Notify.SMTPPort,
			TLS:      opts.Notify.SMTPTLS,
			Username: opts.Notify.SMTPUsername,
			Password: opts.Notify.SMTPPassword,
			From:     opts.Notify.From,
		},
	})
}

// validateBaseURL normalizes base URL, removing trailing slash. Root path means no base URL.
func validateBaseURL(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "/") {
		baseURL = "/" + baseURL
	}
	return baseURL
}

// setupLogs configures lgr, writes to rotated file if file logging enabled, returns the log destination
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	logOpts := []log.Option{log.Msec, log.Out(out), log.Err(out), log.Secret(secrets()...)}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return out
}

// secrets returns non-empty sensitive values to be masked in logs
func secrets() []string {
	res := []string{}
	for _, s := range []string{opts.Store.Token, opts.Store.RedisPassword, opts.Auth.PasswordHash, opts.Notify.SMTPPassword} {
		if s != "" {
			res = append(res, s)
		}
	}
	return res
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
}
