// Package worker runs the queue consumer and the lease reaper side by side.
package worker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

type Options struct {
	Consumer  queue.Consumer
	Evaluator services.EvaluatorService
	// Reaper is optional; API processes embedding a worker may leave it to a dedicated worker.
	Reaper *services.Reaper
	Log    logrus.FieldLogger
}

// Run blocks until ctx is cancelled or one of the loops fails.
func Run(ctx context.Context, opts Options) error {
	if opts.Consumer == nil || opts.Evaluator == nil {
		return errors.New("worker: consumer and evaluator are required")
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "worker")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("🚀 Consumer started")
		err := opts.Consumer.Consume(gctx, opts.Evaluator.EvaluateCandidate)
		log.Info("🛑 Consumer stopped")
		return err
	})

	if opts.Reaper != nil {
		g.Go(func() error {
			return opts.Reaper.Run(gctx)
		})
	}

	return g.Wait()
}
