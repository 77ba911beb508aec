package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	heartbeatInterval = time.Minute
	readinessTimeout  = 10 * time.Second
)

// Check is a named dependency probe that must pass before consuming starts.
type Check struct {
	Name string
	Ping func(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Checks   []Check
	Consumer consumer
}

// Service runs the notification consumer once its dependencies answer.
type Service struct {
	logg     *logger.Logger
	checks   []Check
	consumer consumer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Consumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	for _, c := range params.Checks {
		if c.Ping == nil {
			return nil, fmt.Errorf("check %q has no probe", c.Name)
		}
	}
	return &Service{logg: params.Logger, checks: params.Checks, consumer: params.Consumer}, nil
}

// ready probes every dependency concurrently and fails on the first error.
func (s *Service) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.checks {
		g.Go(func() error {
			if err := c.Ping(gctx); err != nil {
				return fmt.Errorf("%s ping failed: %w", c.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run blocks until the consumer stops or ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		s.logg.Error(ctx, "worker dependencies unavailable", err)
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	done := make(chan error, 1)
	go func() { done <- s.consumer.Run(ctx) }()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			}
			return err
		case <-heartbeat.C:
			s.logg.Debug(ctx, "worker heartbeat")
		}
	}
}
