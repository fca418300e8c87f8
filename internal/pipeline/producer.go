package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rzd-etran/broker/internal/etran"
	"github.com/rzd-etran/broker/internal/queue"
	"github.com/rzd-etran/broker/internal/sleepctl"
	"github.com/rzd-etran/broker/internal/store"
)

// ProducerConfig bundles the DB producer loop's dependencies and tuning.
type ProducerConfig struct {
	QueueIn            *queue.PriorityQueue
	QueueOut           *queue.FIFO
	Sleep              *sleepctl.Controller
	SleepOnDisconnect  time.Duration
	DBPollingInterval  time.Duration
	DBQueryingInterval time.Duration
	Logger             *slog.Logger

	// OpenStore opens a fresh DB session. It is called once at startup and
	// again every time the loop observes a disconnect, matching the
	// supervisor-owns-the-session pattern recommended for the reconnect
	// redesign: the loop never closes an already-dead connection itself.
	OpenStore func(ctx context.Context) (store.Store, error)
}

// RunProducer claims rows from the DB, builds their SOAP bodies, and
// enqueues them into queue_in until ctx is cancelled.
func RunProducer(ctx context.Context, cfg ProducerConfig, login, password string, gzip bool) error {
	logger := cfg.Logger.With("component", "producer")

	db, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			db.Close()
			return ctx.Err()
		}

		room := cfg.QueueIn.Room()
		rows, err := db.GetRequestQueue(ctx, room)
		if err != nil {
			var disc *store.ErrDisconnected
			if errors.As(err, &disc) {
				logger.Warn("db disconnected, reconnecting", "error", err)
				// the existing session is already dead; do not Close it.
				if err := cfg.Sleep.Sleep(ctx, cfg.SleepOnDisconnect); err != nil {
					return err
				}
				db, err = cfg.OpenStore(ctx)
				if err != nil {
					return err
				}
				continue
			}
			logger.Error("db error", "error", err)
			if err := cfg.Sleep.Sleep(ctx, cfg.DBPollingInterval); err != nil {
				db.Close()
				return err
			}
			continue
		}

		for _, row := range rows {
			body, berr := etran.Build(row.TypeID, row.Query, login, password, gzip)
			if berr != nil {
				cfg.QueueOut.Push(queue.ResponsePacket{
					RequestID: row.ID,
					IsError:   true,
					Body:      []byte(berr.Error()),
				})
				continue
			}
			pkt := queue.RequestPacket{
				Priority:  row.Priority,
				RequestID: row.ID,
				TypeID:    row.TypeID,
				Query:     row.Query,
				Body:      body,
			}
			if err := cfg.QueueIn.Push(ctx, pkt); err != nil {
				db.Close()
				return err
			}
		}

		interval := cfg.DBPollingInterval
		if len(rows) > 0 {
			interval = cfg.DBQueryingInterval
		}
		if err := cfg.Sleep.Sleep(ctx, interval); err != nil {
			if errors.Is(err, sleepctl.ErrTerminated) || ctx.Err() != nil {
				db.Close()
				return err
			}
		}
	}
}
