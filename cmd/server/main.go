package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hyprchat/relay/internal/admin"
	"github.com/hyprchat/relay/internal/api"
	"github.com/hyprchat/relay/internal/config"
	"github.com/hyprchat/relay/internal/database"
	"github.com/hyprchat/relay/internal/server"
	"github.com/hyprchat/relay/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configPath     string
	addr           string
	driver         string
	dsn            string
	registration   bool
	noConsole      bool
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to TOML config file")
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&driver, "driver", "", "database driver (postgres or sqlite)")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.BoolVar(&registration, "registration", true, "whether new users may register at login")
	flag.BoolVar(&noConsole, "no-console", false, "disable the interactive admin console")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[relay] ", log.LstdFlags)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("db close: ", err)
		}
	}()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()
	if err := store.Bootstrap(bootCtx); err != nil {
		// the only unrecoverable failure in this process
		logger.Fatal("bootstrap: ", err)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, store, statsUpdater, server.Options{
		RegistrationOpen: cfg.RegistrationOpen,
		HistoryLimit:     cfg.HistoryLimit,
		OpTimeout:        cfg.OpTimeout(),
	})
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewRelayApp(mux, logger, chatServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	consoleCtx, cancelConsole := context.WithCancel(context.Background())
	defer cancelConsole()

	consoleDone := make(chan struct{})
	if noConsole {
		close(consoleDone)
	} else {
		console := admin.NewConsole(logger, store, chatServer, cfg.OpTimeout())
		go func() {
			defer close(consoleDone)
			if err := console.Run(consoleCtx, os.Stdout); err != nil && consoleCtx.Err() == nil {
				logger.Println("admin console: ", err)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server: ", err)
	case <-consoleDone:
		logger.Println("admin console exited")
	}

	cancelConsole()

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown: ", err)
	}

	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown: ", err)
	}

	logger.Println("shutdown complete")
}

// loadConfig merges defaults, the optional config file, and any flags
// the operator set explicitly, in that order.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ServerAddr = addr
		case "driver":
			cfg.Driver = driver
		case "dsn":
			cfg.DatabaseDSN = dsn
		case "registration":
			cfg.RegistrationOpen = registration
		case "allowed-origins":
			cfg.AllowedOrigins = allowedOrigins
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (database.ChatStore, error) {
	if cfg.Driver == config.DriverPostgres {
		return database.NewPgChatStore(cfg.DatabaseDSN)
	}
	return database.NewSqliteChatStore(cfg.DatabaseDSN)
}
