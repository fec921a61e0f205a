package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"frq-generator/application"
	"frq-generator/config"
	"frq-generator/infrastructure"
	"frq-generator/infrastructure/aimodel"
	"frq-generator/infrastructure/llm"
	"frq-generator/interfaces"
)

const shutdownTimeout = 15 * time.Second

type runOptions struct {
	api    bool
	worker bool
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := infrastructure.NewLogger(cfg.Log)

	db, err := infrastructure.NewDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := infrastructure.Migrate(db); err != nil {
		return err
	}
	store := infrastructure.NewContentStore(db)

	rmq, err := infrastructure.NewRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer rmq.Close()

	g, ctx := errgroup.WithContext(ctx)

	if opts.worker {
		provider, err := llm.NewProvider(ctx, cfg.LLM, logger)
		if err != nil {
			return fmt.Errorf("init LLM provider: %w", err)
		}
		model := aimodel.New(provider, aimodel.SettingsFromConfig(cfg.Generation, cfg.LLM), logger)
		generator := application.NewGenerator(store, model, application.GeneratorConfigFrom(cfg.Generation, cfg.Worker), logger)
		evaluator := application.NewEvaluator(store, model, logger)
		consumer := interfaces.NewConsumer(generator, evaluator, cfg.Worker.Concurrency, cfg.Worker.JobTimeout, logger)

		g.Go(func() error {
			return rmq.Consume(ctx, cfg.RabbitMQ.GenerationQueue, cfg.Worker, consumer.Generations())
		})
		g.Go(func() error {
			return rmq.Consume(ctx, cfg.RabbitMQ.EvaluationQueue, cfg.Worker, consumer.Evaluations())
		})
		logger.Info().
			Str("provider", cfg.LLM.Provider).
			Int("concurrency", cfg.Worker.Concurrency).
			Int("batch_size", cfg.Worker.BatchSize).
			Msg("workers started")
	}

	if opts.api {
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := interfaces.NewRouter(logger)
		interfaces.NewHTTPHandler(router, store, rmq, logger)

		srv := &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("shut down")
	return err
}

func migrate() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := infrastructure.NewLogger(cfg.Log)

	db, err := infrastructure.NewDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := infrastructure.Migrate(db); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("migration complete")
	return nil
}
