package alert

import (
	"context"
	"fmt"
	"os"
	"sync"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const pushQueueDepth = 100

// FCMNotifier pushes alerts to a Firebase Cloud Messaging topic so a
// phone buzzes when the bot is stuck with open risk. Sends run on a
// worker goroutine; Notify only enqueues.
type FCMNotifier struct {
	client *messaging.Client
	topic  string

	queue chan Alert
	wg    sync.WaitGroup
	once  sync.Once
}

// NewFCMNotifier initializes the Firebase app from a service-account
// credentials file and starts the send worker.
func NewFCMNotifier(credentialsFile, topic string) (*FCMNotifier, error) {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("fcm: credentials file %s: %w", credentialsFile, err)
	}

	app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("fcm: initialize app: %w", err)
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}

	n := &FCMNotifier{
		client: client,
		topic:  topic,
		queue:  make(chan Alert, pushQueueDepth),
	}
	n.wg.Add(1)
	go n.worker()
	log.Info().Str("topic", topic).Msg("FCM alerts enabled")
	return n, nil
}

// Notify enqueues without blocking; a full queue drops the alert with
// a log entry rather than stalling the session loop.
func (n *FCMNotifier) Notify(ctx context.Context, a Alert) {
	select {
	case n.queue <- a:
	default:
		log.Warn().Str("title", a.Title).Msg("push queue full, dropping alert")
	}
}

// Close stops accepting alerts and waits for queued sends to finish.
func (n *FCMNotifier) Close() error {
	n.once.Do(func() { close(n.queue) })
	n.wg.Wait()
	return nil
}

func (n *FCMNotifier) worker() {
	defer n.wg.Done()
	for a := range n.queue {
		msg := &messaging.Message{
			Notification: &messaging.Notification{
				Title: a.Title,
				Body:  a.Body,
			},
			Data:  n.messageData(a),
			Topic: n.topic,
		}
		id, err := n.client.Send(context.Background(), msg)
		if err != nil {
			log.Warn().Err(err).Str("title", a.Title).Msg("push send failed")
			continue
		}
		log.Debug().Str("message_id", id).Str("title", a.Title).Msg("push sent")
	}
}

func (n *FCMNotifier) messageData(a Alert) map[string]string {
	data := map[string]string{
		"severity": string(a.Severity),
	}
	if a.Symbol != "" {
		data["symbol"] = a.Symbol
	}
	for k, v := range a.Data {
		data[k] = v
	}
	return data
}
