package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/events"
	"github.com/noah-isme/invoice-assistant/internal/notify"
)

type received struct {
	header http.Header
	body   []byte
}

func newEndpoint(t *testing.T, status int) (*httptest.Server, chan received) {
	t.Helper()
	ch := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func invoiceEvent() events.Event {
	return events.Event{
		ID:          uuid.New(),
		Topic:       events.TopicInvoiceGenerated,
		AggregateID: "INV-20260301090507",
		Payload:     json.RawMessage(`{"number":"INV-20260301090507","grand_total":"3216.70"}`),
		OccurredAt:  time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC),
	}
}

func TestWebhookSignsDelivery(t *testing.T) {
	srv, ch := newEndpoint(t, http.StatusNoContent)
	now := time.Unix(1772355907, 0)
	hook := notify.Webhook{URL: srv.URL, Secret: "s3cret", Client: srv.Client(), Now: func() time.Time { return now }}
	ev := invoiceEvent()

	require.NoError(t, hook.Notify(context.Background(), ev))
	got := <-ch
	require.Equal(t, ev.ID.String(), got.header.Get("X-Event-ID"))
	require.Equal(t, strconv.FormatInt(now.Unix(), 10), got.header.Get("X-Timestamp"))
	require.Equal(t, notify.ComputeSignature("s3cret", now.Unix(), ev.ID.String(), got.body), got.header.Get("X-Signature"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.body, &body))
	require.Equal(t, events.TopicInvoiceGenerated, body["topic"])
	require.Equal(t, "INV-20260301090507", body["aggregate_id"])
}

func TestWebhookSkipsUnsubscribedTopics(t *testing.T) {
	srv, ch := newEndpoint(t, http.StatusOK)
	hook := notify.Webhook{URL: srv.URL, Client: srv.Client(), Topics: []string{events.TopicCatalogReplaced}}
	require.NoError(t, hook.Notify(context.Background(), invoiceEvent()))
	require.Empty(t, ch)
}

func TestWebhookReportsRejectedDelivery(t *testing.T) {
	srv, _ := newEndpoint(t, http.StatusInternalServerError)
	hook := notify.Webhook{URL: srv.URL, Client: srv.Client()}
	require.ErrorContains(t, hook.Notify(context.Background(), invoiceEvent()), "500")
}

func TestWebhookReplayGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv, ch := newEndpoint(t, http.StatusOK)
	hook := notify.Webhook{
		URL:       srv.URL,
		Client:    srv.Client(),
		Replay:    notify.RedisReplayProtector{Client: client},
		ReplayTTL: time.Hour,
	}
	ev := invoiceEvent()
	require.NoError(t, hook.Notify(context.Background(), ev))
	require.NoError(t, hook.Notify(context.Background(), ev))
	require.Len(t, ch, 1, "second delivery of the same event is suppressed")
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, notify.ValidateURL("https://hooks.example.com/invoices"))
	require.NoError(t, notify.ValidateURL("http://localhost:9000/hook"))
	require.Error(t, notify.ValidateURL("http://hooks.example.com/invoices"))
	require.Error(t, notify.ValidateURL("ftp://hooks.example.com"))
	require.Error(t, notify.ValidateURL("https://"))
}
