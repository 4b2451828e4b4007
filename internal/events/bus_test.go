package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_MatchesTableAndType(t *testing.T) {
	bus := NewBus(nil)

	var reportsInsert, anyAssignments, all atomic.Int32
	bus.OnEntityChanged(TableReports, Insert, func(ctx context.Context, c Change) error {
		reportsInsert.Add(1)
		return nil
	})
	bus.OnEntityChanged(TableAssignments, "", func(ctx context.Context, c Change) error {
		anyAssignments.Add(1)
		return nil
	})
	bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		all.Add(1)
		return nil
	})

	ctx := context.Background()
	bus.Publish(ctx, Change{Table: TableReports, Type: Insert, EntityID: "r1"})
	bus.Publish(ctx, Change{Table: TableReports, Type: Update, EntityID: "r1"})
	bus.Publish(ctx, Change{Table: TableAssignments, Type: Insert, EntityID: "a1"})
	bus.Publish(ctx, Change{Table: TableAssignments, Type: Update, EntityID: "a1"})
	require.NoError(t, bus.Drain(ctx))

	assert.EqualValues(t, 1, reportsInsert.Load())
	assert.EqualValues(t, 2, anyAssignments.Load())
	assert.EqualValues(t, 4, all.Load())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	var n atomic.Int32
	unsub := bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		n.Add(1)
		return nil
	})
	unsub()

	bus.Publish(context.Background(), Change{Table: TableReports, Type: Insert})
	require.NoError(t, bus.Drain(context.Background()))
	assert.EqualValues(t, 0, n.Load())
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewBus(nil)
	var ok atomic.Int32
	bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		panic("boom")
	})
	bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		return errors.New("failed")
	})
	bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		ok.Add(1)
		return nil
	})

	bus.Publish(context.Background(), Change{Table: TableReports, Type: Insert})
	require.NoError(t, bus.Drain(context.Background()))
	assert.EqualValues(t, 1, ok.Load())
}

func TestBus_HandlersOutliveCanceledContext(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var sawErr error
	var mu sync.Mutex
	release := make(chan struct{})
	bus.OnEntityChanged(AllTables, "", func(hctx context.Context, c Change) error {
		<-release
		mu.Lock()
		sawErr = hctx.Err()
		mu.Unlock()
		return nil
	})

	bus.Publish(ctx, Change{Table: TableReports, Type: Insert})
	cancel()
	close(release)
	require.NoError(t, bus.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, sawErr)
}

func TestBus_DrainHonorsContext(t *testing.T) {
	bus := NewBus(nil)
	block := make(chan struct{})
	defer close(block)
	bus.OnEntityChanged(AllTables, "", func(ctx context.Context, c Change) error {
		<-block
		return nil
	})
	bus.Publish(context.Background(), Change{Table: TableReports, Type: Insert})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Drain(ctx), context.DeadlineExceeded)
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (f *fakePublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestAMQPForwarder_RoutingKeys(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewAMQPForwarder(pub, "portal.changes")

	ctx := context.Background()
	require.NoError(t, fwd.Handle(ctx, Change{Table: TableReports, Type: Insert, EntityID: "r1"}))
	require.NoError(t, fwd.Handle(ctx, Change{Table: TableAssignments, Type: Update, EntityID: "a1", ReportID: "r1"}))

	assert.Equal(t, []string{"portal.changes/reports.insert", "portal.changes/assignments.update"}, pub.keys)

	var decoded Change
	require.NoError(t, json.Unmarshal(pub.msgs[1].Body, &decoded))
	assert.Equal(t, "a1", decoded.EntityID)
	assert.Equal(t, "r1", decoded.ReportID)
	assert.Equal(t, "application/json", pub.msgs[1].ContentType)
	assert.Equal(t, amqp.Persistent, pub.msgs[1].DeliveryMode)
}

func TestAMQPForwarder_WrapsPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	fwd := NewAMQPForwarder(&fakePublisher{err: boom}, "x")
	err := fwd.Handle(context.Background(), Change{Table: TableReports, Type: Insert})
	assert.ErrorIs(t, err, boom)
}

type contactRecord struct {
	ID      string `json:"id"`
	Contact string `json:"contact"`
}

func (r contactRecord) Shareable() any {
	return map[string]string{"id": r.ID}
}

func TestAMQPForwarder_ForwardsOnlyShareableRecords(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewAMQPForwarder(pub, "portal.changes")
	ctx := context.Background()

	require.NoError(t, fwd.Handle(ctx, Change{Table: TableReports, Type: Insert, EntityID: "r1",
		Record: contactRecord{ID: "r1", Contact: "+2348000000000"}}))
	require.NoError(t, fwd.Handle(ctx, Change{Table: TableReports, Type: Update, EntityID: "r1",
		Record: map[string]string{"contact": "+2348000000000"}}))

	require.Len(t, pub.msgs, 2)
	assert.NotContains(t, string(pub.msgs[0].Body), "+2348000000000")
	assert.Contains(t, string(pub.msgs[0].Body), `"record":{"id":"r1"}`)
	assert.NotContains(t, string(pub.msgs[1].Body), "+2348000000000")
	assert.NotContains(t, string(pub.msgs[1].Body), `"record"`)
}
