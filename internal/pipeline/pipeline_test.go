package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rzd-etran/broker/internal/queue"
	"github.com/rzd-etran/broker/internal/sleepctl"
	"github.com/rzd-etran/broker/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory Store used to drive the producer/consumer loops
// without a real SQL Server instance.
type fakeStore struct {
	mu        sync.Mutex
	rows      []store.ClaimedRow
	responses map[int64]struct {
		isError  bool
		response string
	}
	resetCalled bool
}

func (f *fakeStore) GetRequestQueue(ctx context.Context, maxCount int) ([]store.ClaimedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if maxCount <= 0 || len(f.rows) == 0 {
		return nil, nil
	}
	n := maxCount
	if n > len(f.rows) {
		n = len(f.rows)
	}
	out := f.rows[:n]
	f.rows = f.rows[n:]
	return out, nil
}

func (f *fakeStore) SetRequestResponse(ctx context.Context, requestID int64, isError bool, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.responses == nil {
		f.responses = make(map[int64]struct {
			isError  bool
			response string
		})
	}
	f.responses[requestID] = struct {
		isError  bool
		response string
	}{isError, response}
	return nil
}

func (f *fakeStore) ResetProcessingQueue(ctx context.Context) error {
	f.resetCalled = true
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestRunProducer_UnknownTypeIsAckedAsError(t *testing.T) {
	fs := &fakeStore{rows: []store.ClaimedRow{{ID: 9, TypeID: 999, Priority: 1, Query: "x"}}}
	queueIn := queue.NewPriorityQueue(10)
	queueOut := queue.NewFIFO()
	sleeper := sleepctl.NewController()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunProducer(ctx, ProducerConfig{
			QueueIn:            queueIn,
			QueueOut:           queueOut,
			Sleep:              sleeper,
			SleepOnDisconnect:  time.Millisecond,
			DBPollingInterval:  time.Hour,
			DBQueryingInterval: time.Hour,
			Logger:             testLogger(),
			OpenStore:          func(ctx context.Context) (store.Store, error) { return fs, nil },
		}, "login", "password", false)
	}()

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	resp, err := queueOut.Pop(popCtx)
	if err != nil {
		t.Fatalf("expected a response for the unknown type row: %v", err)
	}
	if resp.RequestID != 9 || !resp.IsError {
		t.Fatalf("unexpected response: %+v", resp)
	}

	cancel()
	<-done
}

func TestRunConsumer_RequeuesOnOutagePrefix(t *testing.T) {
	fs := &fakeStore{}
	queueIn := queue.NewPriorityQueue(10)
	queueOut := queue.NewFIFO()
	outage := &OutageFlag{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunConsumer(ctx, ConsumerConfig{
			QueueIn:           queueIn,
			QueueOut:          queueOut,
			Outage:            outage,
			SleepOnDisconnect: time.Millisecond,
			Logger:            testLogger(),
			OpenStore:         func(ctx context.Context) (store.Store, error) { return fs, nil },
		})
	}()

	outerEnvelope := func(innerText string) string {
		return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
<soapenv:Body><GetBlockResponse><Text>` + innerText + `</Text></GetBlockResponse></soapenv:Body>
</soapenv:Envelope>`
	}
	inner := `&lt;error errorStatusCode=&quot;504&quot; errorMessage=&quot;Gateway Timeout&quot;/&gt;`

	queueOut.Push(queue.ResponsePacket{
		RequestID: 42,
		IsError:   false,
		Body:      []byte(outerEnvelope(inner)),
		Request:   queue.RequestPacket{RequestID: 42, Priority: 3},
	})

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	pkt, err := queueIn.Pop(popCtx)
	if err != nil {
		t.Fatalf("expected packet to be requeued: %v", err)
	}
	if pkt.RequestID != 42 {
		t.Fatalf("unexpected requeued packet: %+v", pkt)
	}
	if !outage.IsDown() {
		t.Fatal("expected outage flag to be set")
	}

	cancel()
	<-done
}

func TestRunConsumer_PersistsProducerFlaggedError(t *testing.T) {
	fs := &fakeStore{}
	queueIn := queue.NewPriorityQueue(10)
	queueOut := queue.NewFIFO()
	outage := &OutageFlag{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunConsumer(ctx, ConsumerConfig{
			QueueIn:           queueIn,
			QueueOut:          queueOut,
			Outage:            outage,
			SleepOnDisconnect: time.Millisecond,
			Logger:            testLogger(),
			OpenStore:         func(ctx context.Context) (store.Store, error) { return fs, nil },
		})
	}()

	queueOut.Push(queue.ResponsePacket{
		RequestID: 7,
		IsError:   true,
		Body:      []byte("ValueError"),
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fs.mu.Lock()
		_, ok := fs.responses[7]
		fs.mu.Unlock()
		if ok {
			break
		}
		time.Sleep(time.Millisecond)
	}

	fs.mu.Lock()
	got, ok := fs.responses[7]
	fs.mu.Unlock()
	if !ok {
		t.Fatal("expected SetRequestResponse to have been called for request 7")
	}
	if !got.isError || got.response != "ValueError" {
		t.Fatalf("unexpected persisted response: %+v", got)
	}

	cancel()
	<-done
}
