package main

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/config"
	"github.com/lox/pokerdurak/internal/httpserver"
)

type CLI struct {
	BindAddr string `kong:"arg,optional,default='127.0.0.1:8000',help='Address to listen on'"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("server"),
		kong.Description("poker-durak game server"),
		kong.UsageOnError(),
	)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	cfg, err := config.Load("server.hcl")
	if err != nil {
		ctx.FatalIfErrorf(err)
	}
	timing := cfg.Resolve()
	if level, levelErr := zerolog.ParseLevel(timing.LogLevel); levelErr == nil {
		logger = logger.Level(level)
	}

	bindAddr := cli.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1:8000"
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	srv := httpserver.New(logger, rng, quartz.NewReal(), timing, "static")

	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		ctx.FatalIfErrorf(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", bindAddr).Msg("listening")
		serverErr <- srv.Serve(listener)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server exited with error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server exited with error")
		} else {
			logger.Info().Msg("server shutdown complete")
		}
	}
}
