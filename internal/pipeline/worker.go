package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rzd-etran/broker/internal/etran"
	"github.com/rzd-etran/broker/internal/queue"
)

// WorkerPoolConfig bundles the worker pool's dependencies and tuning.
type WorkerPoolConfig struct {
	QueueIn           *queue.PriorityQueue
	QueueOut          *queue.FIFO
	Outage            *OutageFlag
	WorkersCount      int
	SleepOnDos        time.Duration
	SleepOnDosMax     time.Duration
	SleepOnDisconnect time.Duration
	RequestTimeout    time.Duration
	ETRANURL          string
	ETRANHeaders      map[string]string
	Logger            *slog.Logger
}

// RunWorkerPool starts WorkersCount workers, each pulling from queue_in and
// pushing to queue_out, and blocks until ctx is cancelled or every worker
// has exited.
func RunWorkerPool(ctx context.Context, cfg WorkerPoolConfig) error {
	n := cfg.WorkersCount
	if n < 1 {
		n = 1
	}

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		client := etran.NewClient(cfg.ETRANURL, cfg.ETRANHeaders, cfg.RequestTimeout)
		w := &worker{
			id:     uuid.NewString(),
			cfg:    cfg,
			client: client,
		}
		go func() { errs <- w.run(ctx) }()
	}

	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type worker struct {
	id     string
	cfg    WorkerPoolConfig
	client *etran.Client
}

func (w *worker) run(ctx context.Context) error {
	logger := w.cfg.Logger.With("component", "worker", "worker_id", w.id)

	for {
		pkt, err := w.cfg.QueueIn.Pop(ctx)
		if err != nil {
			return err
		}

		if err := w.preSleep(ctx, pkt); err != nil {
			return err
		}

		body, err := w.client.Post(ctx, pkt.Body)
		if err != nil {
			logger.Warn("transport error, requeueing", "request_id", pkt.RequestID, "error", err)
			if perr := w.cfg.QueueIn.Push(ctx, pkt); perr != nil {
				return perr
			}
			select {
			case <-time.After(w.cfg.SleepOnDisconnect):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		w.cfg.QueueOut.Push(queue.ResponsePacket{
			RequestID: pkt.RequestID,
			IsError:   false,
			Body:      body,
			Request:   pkt,
			DecodedAt: time.Now(),
		})
	}
}

// preSleep implements the global-outage-pause / per-request-backoff choice:
// a sticky outage pauses every worker for SleepOnDosMax; otherwise the
// packet's own dos_counter determines a capped linear backoff.
func (w *worker) preSleep(ctx context.Context, pkt queue.RequestPacket) error {
	var d time.Duration
	if w.cfg.Outage.IsDown() {
		d = w.cfg.SleepOnDosMax
	} else {
		d = time.Duration(pkt.DosCounter) * w.cfg.SleepOnDos
		if d > w.cfg.SleepOnDosMax {
			d = w.cfg.SleepOnDosMax
		}
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
