package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubPublisherPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "orders")
	require.NoError(t, err)

	publisher, err := NewPubSubPublisher(topic)
	require.NoError(t, err)
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.Publish(ctx, Event{
		ID:         "evt-1",
		Type:       TypeOrderCreated,
		Subject:    "01HZY",
		OccurredAt: occurred,
		Data:       map[string]any{"orderNumber": "ORD202505061234"},
	})
	require.NoError(t, err)

	messages := srv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, TypeOrderCreated, messages[0].Attributes["type"])
	assert.Equal(t, "01HZY", messages[0].Attributes["subject"])
	assert.Equal(t, "evt-1", messages[0].Attributes["eventId"])

	var payload Event
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ORD202505061234", payload.Data["orderNumber"])
	assert.True(t, occurred.Equal(payload.OccurredAt))

	assert.Error(t, publisher.Publish(ctx, Event{}))
}

func TestLogPublisher(t *testing.T) {
	var got map[string]any
	p := LogPublisher{Log: func(_ context.Context, event string, fields map[string]any) {
		assert.Equal(t, "events.published", event)
		got = fields
	}}
	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeOrderStatusChanged, Subject: "o1"}))
	assert.Equal(t, TypeOrderStatusChanged, got["eventType"])

	assert.NoError(t, LogPublisher{}.Publish(context.Background(), Event{Type: TypeOrderCreated}))
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	_, err := NewPubSubPublisher(nil)
	assert.Error(t, err)
}
