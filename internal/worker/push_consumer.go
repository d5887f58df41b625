package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/securefinance/emilock/internal/rabbitmq"
	"github.com/securefinance/emilock/internal/services"
)

const consumerTag = "push-worker-1"

// PushWorker drains the push.dispatch queue and fires FCM wake-ups.
// Push is advisory: any failure here is logged and the message acked,
// because the device picks the command up on its next heartbeat anyway.
type PushWorker struct {
	registry *services.RegistryService
	push     *services.PushService
}

func NewPushWorker(registry *services.RegistryService, push *services.PushService) *PushWorker {
	return &PushWorker{registry: registry, push: push}
}

// StartWorker starts the consumer process
// ctx is used for graceful shutdown signal
func (w *PushWorker) StartWorker(ctx context.Context) error {
	if rabbitmq.Client == nil {
		return fmt.Errorf("RabbitMQ client not initialized")
	}

	ch := rabbitmq.Client.Channel
	qName := rabbitmq.PushQueueName

	msgs, err := ch.Consume(
		qName,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack (FALSE: ack after processing)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf(" [*] Push worker started. Waiting for messages in %s", qName)

	go func() {
		for d := range msgs {
			w.processMessage(ctx, d)
		}
	}()

	<-ctx.Done()
	log.Println(" [x] Shutdown signal received. Canceling push consumer...")

	if err := ch.Cancel(consumerTag, false); err != nil {
		log.Printf("Error canceling consumer: %v", err)
	}

	log.Println(" [x] Push worker exiting")
	return nil
}

func (w *PushWorker) processMessage(ctx context.Context, d amqp.Delivery) {
	// Every outcome acks: a push job is worthless once stale and must
	// never poison the queue.
	defer d.Ack(false)

	var job rabbitmq.PushJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf(" [!] Malformed push job, discarding: %v", err)
		return
	}

	// Late binding: fetch the current FCM token at delivery time, not
	// enqueue time. The device may have re-registered since.
	customer, err := w.registry.GetCustomer(ctx, job.CustomerID)
	if err != nil {
		log.Printf(" [!] Push job for unknown customer %s, discarding", job.CustomerID)
		return
	}

	if customer.FCMToken == nil || *customer.FCMToken == "" {
		log.Printf(" [i] No FCM token for %s, device will sync on next heartbeat", job.CustomerID)
		return
	}

	if err := w.push.SendAction(*customer.FCMToken, job.CustomerID, job.Action); err != nil {
		log.Printf(" [!] Push delivery failed for %s: %v", job.CustomerID, err)
		return
	}

	log.Printf(" [x] Push %s delivered to %s", job.Action, job.CustomerID)
}
