package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rzd-etran/broker/internal/etran"
	"github.com/rzd-etran/broker/internal/queue"
	"github.com/rzd-etran/broker/internal/store"
)

// ConsumerConfig bundles the DB consumer loop's dependencies and tuning.
type ConsumerConfig struct {
	QueueIn           *queue.PriorityQueue
	QueueOut          *queue.FIFO
	Outage            *OutageFlag
	SleepOnDisconnect time.Duration
	Logger            *slog.Logger
	OpenStore         func(ctx context.Context) (store.Store, error)
}

// RunConsumer drains queue_out, decodes each response, and either persists
// it or republishes the originating request, until ctx is cancelled.
func RunConsumer(ctx context.Context, cfg ConsumerConfig) error {
	logger := cfg.Logger.With("component", "consumer")

	db, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}

	for {
		pkt, err := cfg.QueueOut.Pop(ctx)
		if err != nil {
			db.Close()
			return err
		}

		isError, text := dispositionText(pkt)

		switch {
		case isError && etran.IsOutage(text):
			cfg.Outage.Set()
			logger.Warn("upstream outage detected", "request_id", pkt.RequestID)
			if err := cfg.QueueIn.Push(ctx, pkt.Request); err != nil {
				db.Close()
				return err
			}
			continue

		case isError && pkt.Request.RequestID != 0 && etran.IsRateLimited(text):
			pkt.Request.DosCounter++
			logger.Info("upstream rate limit, requeueing", "request_id", pkt.RequestID, "dos_counter", pkt.Request.DosCounter)
			if err := cfg.QueueIn.Push(ctx, pkt.Request); err != nil {
				db.Close()
				return err
			}
			continue
		}

		cfg.Outage.Clear()
		if !isError && !strings.HasPrefix(strings.TrimSpace(text), "<") {
			text = "<root>" + text + "</root>"
		}

		if err := db.SetRequestResponse(ctx, pkt.RequestID, isError, text); err != nil {
			var disc *store.ErrDisconnected
			if errors.As(err, &disc) {
				logger.Warn("db disconnected mid-consume, requeueing response", "error", err)
				cfg.QueueOut.Push(pkt)
				if err := sleepDisconnect(ctx, cfg.SleepOnDisconnect); err != nil {
					return err
				}
				db, err = cfg.OpenStore(ctx)
				if err != nil {
					return err
				}
				continue
			}
			logger.Error("db error persisting response", "request_id", pkt.RequestID, "error", err)
		}
	}
}

// dispositionText resolves the (is_error, text) pair for a response packet:
// a packet already flagged is_error by the producer (a builder rejection)
// carries its text verbatim; otherwise it must be decoded.
func dispositionText(pkt queue.ResponsePacket) (bool, string) {
	if pkt.IsError {
		return true, string(pkt.Body)
	}
	return etran.Decode(pkt.Body)
}

func sleepDisconnect(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
