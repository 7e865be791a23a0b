package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/cyberinferno/hashchat/chat"
	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/logger"
	"github.com/cyberinferno/hashchat/roster"
)

// Options contains the flag options. Flags override the configuration file.
type Options struct {
	Config   string `short:"c" long:"config" description:"TOML configuration file."`
	Addr     string `short:"a" long:"addr" description:"Host and port to listen on."`
	Codec    string `long:"codec" description:"Wire codec." choice:"text" choice:"binary"`
	LogLevel string `short:"l" long:"log-level" description:"Log level (debug, info, warn, error)."`
	Roster   string `long:"roster" description:"Roster cache backend." choice:"none" choice:"memory" choice:"redis"`
}

func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	cfg, err := loadConfig(options)
	if err != nil {
		fail(2, "%v\n", err)
	}

	log, err := logger.New(logger.Options{
		Service: "chatserver",
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Dir:     cfg.Logging.Dir,
	})
	if err != nil {
		fail(2, "logger: %v\n", err)
	}
	defer log.Close()

	if err := run(cfg, log); err != nil {
		log.Error("Server failed", logger.Err(err))
		_ = log.Close()
		os.Exit(1)
	}
}

func loadConfig(options Options) (*config.Config, error) {
	cfg := config.Defaults()
	if options.Config != "" {
		loaded, err := config.Load(options.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if options.Addr != "" {
		cfg.Server.Addr = options.Addr
	}
	if options.Codec != "" {
		cfg.Server.Codec = options.Codec
	}
	if options.LogLevel != "" {
		cfg.Logging.Level = options.LogLevel
	}
	if options.Roster != "" {
		cfg.Roster.Backend = options.Roster
	}

	return cfg, cfg.Validate()
}

func run(cfg *config.Config, log logger.Logger) error {
	// Keys carry the registry id, the address only makes them readable.
	cache, err := roster.New(cfg.Roster, cfg.Server.Addr)
	if err != nil {
		return err
	}
	defer cache.Close()

	srv, err := chat.NewServer(cfg.Server, chat.WithLogger(log), chat.WithRoster(cache))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("Chat server started",
		logger.Field{Key: "addr", Value: srv.Addr().String()},
		logger.Field{Key: "codec", Value: cfg.Server.Codec},
		logger.Field{Key: "roster", Value: cfg.Roster.Backend},
	)

	<-ctx.Done()
	log.Info("Shutting down")
	srv.Stop()

	return nil
}
