package scheduler

import (
	"context"
	"fmt"

	"dealpulse_backend/platform/config"
	"dealpulse_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Kicker is the dispatcher side of a wake-up. Both task types resolve to
// the same nudge: the dispatcher re-reads the Postgres queue and claims
// whatever is due.
type Kicker interface {
	Kick()
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	kicker Kicker
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, kicker Kicker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		kicker: kicker,
		log:    log,
	}

	mux.HandleFunc(TaskDispatcherWake, w.handleDispatcherWake)
	mux.HandleFunc(TaskReprocessingDue, w.handleReprocessingDue)

	return w, nil
}

func (w *Worker) handleDispatcherWake(ctx context.Context, task *asynq.Task) error {
	if w.kicker != nil {
		w.kicker.Kick()
	}
	return nil
}

func (w *Worker) handleReprocessingDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReprocessingDuePayload(task)
	if err != nil {
		return err
	}

	w.log.Info("reprocessing wake", "opportunity_id", payload.OpportunityID)
	if w.kicker != nil {
		w.kicker.Kick()
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
