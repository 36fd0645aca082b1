// cmd/preflight/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/config"
	"github.com/hamed0406/sitemonitor/internal/repo/backend"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	dbCheck := flag.Bool("db", true, "open the store and run migrations")
	flag.Parse()

	if !preflight(*configPath, *dbCheck, os.Stdout, os.Stderr) {
		os.Exit(1)
	}
}

func preflight(configPath string, dbCheck bool, stdout, stderr io.Writer) bool {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	cfg, err := config.Load(configPath)
	if err != nil {
		fail(err.Error())
		return false
	}
	ok("config valid, API_ADDR=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; admin routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS and ADMIN_API_KEYS are empty; read routes are open.")
	}
	for name, keys := range map[string][]string{"ADMIN_API_KEYS": cfg.AdminAPIKeys, "PUBLIC_API_KEYS": cfg.PublicAPIKeys} {
		for _, k := range keys {
			if len(k) < 16 {
				warn(name + " contains a key shorter than 16 characters.")
				break
			}
		}
	}

	if cfg.HasTelegram() {
		ok("Telegram alerts to chat " + cfg.AlertChatID)
	}
	if cfg.SlackWebhookURL != "" {
		ok("Slack alerts enabled")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; browsers will be blocked by CORS for cross-origin requests.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		fail("DATABASE_URL: " + err.Error())
		return false
	}
	if u.Scheme == "memory" {
		warn("DATABASE_URL is memory://; sites and checks are lost on restart.")
	}
	if dbCheck {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		store, err := backend.Open(ctx, cfg.DatabaseURL, zap.NewNop())
		if err != nil {
			fail("store: " + err.Error())
		} else {
			_ = store.Close()
			ok(u.Scheme + " store reachable, migrations applied")
		}
	}

	if failed {
		return false
	}
	ok("preflight passed")
	return true
}
