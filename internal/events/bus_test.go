package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/events"
)

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := events.NewMemoryStore(0)
	notifier := &captureNotifier{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return now }}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceGenerated, "INV-20260501120000", map[string]any{"grand_total": "3216.70"})
	require.NoError(t, err)
	require.Equal(t, events.TopicInvoiceGenerated, ev.Topic)
	require.Equal(t, now, ev.OccurredAt)
	require.JSONEq(t, `{"grand_total":"3216.70"}`, string(ev.Payload))

	stored := store.Events()
	require.Len(t, stored, 1)
	require.Equal(t, ev.ID, stored[0].ID)
	require.Len(t, notifier.events, 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := &events.Bus{Store: events.NewMemoryStore(0)}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "agg", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicCatalogReplaced, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicCatalogReplaced, "agg", "{not json")
	require.Error(t, err)

	ev, err := bus.Emit(ctx, events.TopicCatalogReplaced, "agg", json.RawMessage(nil))
	require.NoError(t, err)
	require.Equal(t, "{}", string(ev.Payload))

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicCatalogReplaced, "agg", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := events.NewMemoryStore(0)
	failing := events.NotifierFunc(func(context.Context, events.Event) error { return errors.New("boom") })
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{failing, nil}}

	_, err := bus.Emit(context.Background(), events.TopicCatalogReloaded, "default", nil)
	require.ErrorContains(t, err, "boom")
	require.Len(t, store.Events(), 1, "event is stored even when a notifier fails")
}

func TestMemoryStoreLimit(t *testing.T) {
	store := events.NewMemoryStore(2)
	bus := &events.Bus{Store: store}
	for _, id := range []string{"a", "b", "c"} {
		_, err := bus.Emit(context.Background(), events.TopicCatalogReplaced, id, nil)
		require.NoError(t, err)
	}
	stored := store.Events()
	require.Len(t, stored, 2)
	require.Equal(t, "b", stored[0].AggregateID)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	bus := &events.Bus{Store: events.NewMemoryStore(0), Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicInvoiceGenerated, "INV-1", map[string]int{"items": 2})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"topic":"invoice.generated"`)
	require.Contains(t, buf.String(), `"payload":{"items":2}`)
}
