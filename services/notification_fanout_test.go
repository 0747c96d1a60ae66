package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"backend_fleetwatch/config"
	"backend_fleetwatch/models"

	redis "github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	failOn    map[string]error
	published map[string][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failOn: map[string]error{}, published: map[string][]byte{}}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[channel]; err != nil {
		return redis.NewIntResult(0, err)
	}
	f.published[channel] = message.([]byte)
	return redis.NewIntResult(1, nil)
}

type fakeTelegramSender struct {
	mu     sync.Mutex
	failOn map[int64]error
	sent   []tgbotapi.MessageConfig
}

func (f *fakeTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	if err := f.failOn[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func testNotificationsConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		AdminChannel: "private-admin-alerts",
		UserChannel:  "private-user-%d-alerts",
	}
}

func testTicket(users ...models.User) *models.Ticket {
	return &models.Ticket{
		ID:     7,
		Status: models.TicketStatusOpen,
		Alert: &models.Alert{
			ID:        3,
			Type:      "Panic button",
			Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Unit:      &models.Unit{ID: 1, Name: "Truck 1", Users: users},
		},
	}
}

func TestNotificationFanoutChannels(t *testing.T) {
	fanout := NewNotificationFanout(nil, nil, nil, testNotificationsConfig(), "http://app", nil)

	channels := fanout.Channels([]models.User{{ID: 7}, {ID: 9}, {ID: 7}})
	assert.Equal(t, []string{"private-admin-alerts", "private-user-7-alerts", "private-user-9-alerts"}, channels)

	assert.Equal(t, []string{"private-admin-alerts"}, fanout.Channels(nil), "админский канал есть всегда")
}

func TestNotificationFanoutBuildPayload(t *testing.T) {
	fanout := NewNotificationFanout(nil, nil, nil, testNotificationsConfig(), "http://app", nil)

	payload := fanout.BuildPayload(testTicket())
	ticket := payload["ticket"].(map[string]interface{})

	assert.Equal(t, uint(7), ticket["id"])
	assert.Equal(t, "Open", ticket["status"])
	assert.Equal(t, "Truck 1", ticket["unit_name"])
	assert.Equal(t, "Panic button", ticket["alert_type"])
	assert.Equal(t, "2024-05-01T12:00:00Z", ticket["timestamp"])
	assert.Equal(t, "http://app/tickets/7", ticket["url"])
}

func TestNotificationFanoutDeliversToAllSinks(t *testing.T) {
	publisher := newFakePublisher()
	sender := &fakeTelegramSender{failOn: map[int64]error{}}
	fanout := NewNotificationFanout(
		NewRedisBroadcastSink(publisher, nil),
		NewTelegramClientWithSender(sender, nil),
		nil, testNotificationsConfig(), "http://app", nil,
	)

	report := fanout.HandleTicketCreated(context.Background(), TicketCreated{
		Ticket: testTicket(models.User{ID: 7, TelegramChatID: "1001"}, models.User{ID: 9}),
	})

	assert.Equal(t, []string{"private-admin-alerts", "private-user-7-alerts", "private-user-9-alerts"}, report.Channels)
	assert.Equal(t, []string{"1001"}, report.Tokens)
	assert.Len(t, report.Deliveries, 4)
	assert.Zero(t, report.FailedCount())
	assert.NotEmpty(t, report.DeliveryID)

	var event struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(publisher.published["private-user-9-alerts"], &event))
	assert.Equal(t, EventTicketCreated, event.Event)
	assert.Contains(t, event.Data, "ticket")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(1001), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "New alert: Truck 1")
	assert.Contains(t, sender.sent[0].Text, "TKT-007")
}

func TestNotificationFanoutIsolatesFailures(t *testing.T) {
	publisher := newFakePublisher()
	publisher.failOn["private-admin-alerts"] = errors.New("redis down")
	sender := &fakeTelegramSender{failOn: map[int64]error{1001: errors.New("chat not found")}}
	fanout := NewNotificationFanout(
		NewRedisBroadcastSink(publisher, nil),
		NewTelegramClientWithSender(sender, nil),
		nil, testNotificationsConfig(), "http://app", nil,
	)

	report := fanout.HandleTicketCreated(context.Background(), TicketCreated{
		Ticket: testTicket(
			models.User{ID: 7, TelegramChatID: "1001"},
			models.User{ID: 9, TelegramChatID: "1002"},
		),
	})

	assert.Equal(t, 2, report.FailedCount())
	assert.Contains(t, publisher.published, "private-user-7-alerts")
	assert.Contains(t, publisher.published, "private-user-9-alerts")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(1002), sender.sent[0].ChatID)
}

func TestNotificationFanoutSkipsPushWithoutTokens(t *testing.T) {
	sender := &fakeTelegramSender{}
	fanout := NewNotificationFanout(nil, NewTelegramClientWithSender(sender, nil), nil, testNotificationsConfig(), "http://app", nil)

	report := fanout.HandleTicketCreated(context.Background(), TicketCreated{Ticket: testTicket(models.User{ID: 5})})

	assert.Empty(t, report.Deliveries)
	assert.Empty(t, sender.sent)
}

func TestFormatPushTextEscapesHTML(t *testing.T) {
	text := FormatPushText(PushMessage{
		Title: "New alert: <Truck>",
		Body:  "Alert 'Panic & run' registered.",
		Data:  map[string]string{"url": "http://app/tickets/1", "ticket_code": "TKT-001"},
	})

	assert.Contains(t, text, "<b>New alert: &lt;Truck&gt;</b>")
	assert.Contains(t, text, "Panic &amp; run")
	assert.Contains(t, text, fmt.Sprintf("<a href=%q>TKT-001</a>", "http://app/tickets/1"))
}
