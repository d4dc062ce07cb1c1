package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canlidoviz/internal/application/container"
	"canlidoviz/internal/application/port"
	"canlidoviz/internal/application/usecase/mirror"
	"canlidoviz/internal/application/usecase/stream"
	"canlidoviz/internal/domain"
	"canlidoviz/internal/infrastructure/catalog"
	"canlidoviz/internal/infrastructure/config"
	infracontainer "canlidoviz/internal/infrastructure/container"
	"canlidoviz/internal/infrastructure/logger"
	"canlidoviz/internal/infrastructure/socketio"
	"canlidoviz/internal/interfaces/console"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("canlidoviz exited")
	}
}

func run(cfg *config.Config) error {
	logCloser, err := logger.Configure(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := infracontainer.New(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	opts := stream.DefaultOptions()
	opts.Categories = cfg.Categories()
	opts.Symbols = cfg.StaticSymbols()
	opts.SubscribeTimeout = cfg.SubscribeTimeout()

	sockOpts := socketio.DefaultOptions()
	sockOpts.Reconnection = *cfg.Stream.Reconnection
	sockOpts.ReconnectionDelay = cfg.ReconnectionDelay()
	sockOpts.ReconnectionDelayMax = cfg.ReconnectionDelayMax()
	sockOpts.ReconnectionAttempts = cfg.Stream.ReconnectionAttempts
	sockOpts.DialTimeout = cfg.DialTimeout()

	app := container.New(opts, container.Deps{
		Resolver: catalog.New(catalog.Options{
			Timeout:   cfg.CatalogTimeout(),
			UserAgent: cfg.Catalog.UserAgent,
			URLs:      cfg.CatalogURLs(),
		}),
		NewTransport: func() (port.Transport, error) {
			c, err := socketio.New(cfg.Stream.URL, sockOpts)
			if err != nil {
				return nil, err
			}
			log.Debug().Str("endpoint", c.Endpoint()).Msg("socket.io transport created")
			return c, nil
		},
		Repo:         infra.Repository(),
		RecordBuffer: cfg.Storage.Buffer,
	})

	// the recorder outlives sessions and is stopped after the last one so it can flush
	recorder := app.Recorder()
	recDone := make(chan struct{})
	recCtx, stopRecorder := context.WithCancel(context.Background())
	if recorder != nil {
		go func() {
			defer close(recDone)
			_ = recorder.Run(recCtx)
		}()
	} else {
		close(recDone)
	}
	defer func() {
		stopRecorder()
		<-recDone
		if recorder != nil {
			log.Info().
				Uint64("written", recorder.Written()).
				Uint64("dropped", recorder.Dropped()).
				Uint64("failed", recorder.Failed()).
				Msg("mirror stopped")
		}
	}()

	sink := console.NewSink()
	formatter := console.NewFormatter(!cfg.App.NoColor)

	log.Info().
		Str("url", cfg.Stream.URL).
		Str("categories", cfg.Categories().String()).
		Int("static_symbols", len(opts.Symbols)).
		Bool("mirror", recorder != nil).
		Msg("canlidoviz started")

	for {
		sess, err := app.NewSession()
		if err != nil {
			return err
		}
		wire(sess, cfg, sink, formatter, recorder)

		if err := sess.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go logStats(sess, time.Duration(cfg.App.StatsEverySec)*time.Second)

		err = sess.Wait()
		exhausted := sess.Status() == stream.StatusExhausted
		_ = sess.Close()
		_ = sink.NewLine()

		st := sess.Stats()
		log.Info().
			Uint64("batches", st.Batches).
			Uint64("changes", st.Changes).
			Uint64("discarded", st.Discarded).
			Uint64("reconnects", st.Reconnects).
			Msg("session ended")

		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		case exhausted && cfg.App.RestartOnExhausted:
			log.Warn().Dur("delay", cfg.RestartDelay()).Msg("reconnect attempts exhausted, restarting session")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.RestartDelay()):
			}
		case exhausted:
			return errors.New("reconnect attempts exhausted")
		default:
			// reconnection disabled and the connection ended
			log.Warn().Msg("stream stopped")
			return nil
		}
	}
}

func wire(sess *stream.Session, cfg *config.Config, sink port.Sink, f *console.Formatter, rec *mirror.Recorder) {
	sess.OnLog(func(e domain.LogEntry) {
		switch e.Severity {
		case domain.SeverityError:
			log.Error().Err(e.Err).Time("at", e.Time).Msg(e.Message)
		case domain.SeverityWarning:
			log.Warn().Time("at", e.Time).Msg(e.Message)
		default:
			log.Info().Time("at", e.Time).Msg(e.Message)
		}
	})

	if !cfg.App.Quiet {
		sess.OnCurrencyChanged(func(q domain.Quote) {
			if line, ok := f.Format(q); ok {
				_ = sink.WriteLine(q.LastUpdate, line)
			}
		})
	}
	if rec != nil {
		sess.OnCurrencyChanged(rec.Enqueue)
	}

	sess.Events.OnReconnectFailed(func() {
		log.Warn().Msg("Reconnect Failed")
	})
}

func logStats(sess *stream.Session, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-sess.Done():
			return
		case <-t.C:
			st := sess.Stats()
			log.Info().
				Str("status", sess.Status().String()).
				Int("symbols", len(sess.Quotes())).
				Uint64("batches", st.Batches).
				Uint64("tokens", st.Tokens).
				Uint64("discarded", st.Discarded).
				Uint64("changes", st.Changes).
				Msg("stream stats")
		}
	}
}
