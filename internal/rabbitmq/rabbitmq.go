package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName   = "emilock.direct"
	PushQueueName  = "push.dispatch"
	RoutingKeyPush = "push"
	ReconnectDelay = 5 * time.Second
)

// Push actions carried in dispatch jobs. These mirror what the device
// agent understands as FCM data messages.
const (
	PushActionLock   = "LOCK_NOW"
	PushActionUnlock = "UNLOCK_NOW"
)

// PushJob asks the worker to nudge a device out-of-band. It carries the
// action and identity only; the worker resolves the current FCM token at
// delivery time so stale jobs never push to a reassigned token.
type PushJob struct {
	CustomerID string `json:"customer_id"`
	Action     string `json:"action"`
	QueuedAt   int64  `json:"queued_at"`
}

type RabbitMQClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	URL     string
}

var Client *RabbitMQClient

// SetupRabbitMQ initializes the connection and declares the topology
func SetupRabbitMQ(url string) error {
	Client = &RabbitMQClient{
		URL: url,
	}
	return Client.connect()
}

func (c *RabbitMQClient) connect() error {
	var err error

	log.Printf("Attempting to connect to RabbitMQ...")
	c.Conn, err = amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.Channel, err = c.Conn.Channel()
	if err != nil {
		c.Conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := c.declareTopology(); err != nil {
		c.Channel.Close()
		c.Conn.Close()
		return err
	}

	// Watch for errors in background
	go c.watchConnection()

	log.Println("RabbitMQ connected successfully")
	return nil
}

func (c *RabbitMQClient) declareTopology() error {
	err := c.Channel.ExchangeDeclare(
		ExchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = c.Channel.QueueDeclare(
		PushQueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare push queue: %w", err)
	}

	err = c.Channel.QueueBind(
		PushQueueName,  // queue name
		RoutingKeyPush, // routing key
		ExchangeName,   // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind push queue: %w", err)
	}

	return nil
}

func (c *RabbitMQClient) watchConnection() {
	notifyClose := c.Conn.NotifyClose(make(chan *amqp.Error))

	if err := <-notifyClose; err != nil {
		log.Printf("RabbitMQ connection closed: %v. Reconnecting...", err)
		c.reconnect()
	}
}

func (c *RabbitMQClient) reconnect() {
	for {
		time.Sleep(ReconnectDelay)
		if err := c.connect(); err == nil {
			log.Println("RabbitMQ reconnected")
			return
		} else {
			log.Printf("Failed to reconnect to RabbitMQ: %v. Retrying in %v...", err, ReconnectDelay)
		}
	}
}

// Close closes the connection and channel
func Close() {
	if Client != nil {
		if Client.Channel != nil {
			Client.Channel.Close()
		}
		if Client.Conn != nil {
			Client.Conn.Close()
		}
	}
}

// PublishPushJob enqueues a best-effort push dispatch. Callers must treat
// failure as non-fatal: the mailbox remains the authoritative channel.
func (c *RabbitMQClient) PublishPushJob(job PushJob) error {
	if c == nil || c.Channel == nil || c.Channel.IsClosed() {
		return fmt.Errorf("RabbitMQ client not (yet) connected")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal push job: %w", err)
	}

	err = c.Channel.Publish(
		ExchangeName,   // exchange
		RoutingKeyPush, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			// Push nudges are only a latency optimization; a stale one is
			// worse than none at all.
			Expiration: "60000",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish push job: %w", err)
	}

	return nil
}

// PublishPushJob publishes on the package-level client.
func PublishPushJob(customerID, action string) error {
	if Client == nil {
		return fmt.Errorf("RabbitMQ client not initialized")
	}
	return Client.PublishPushJob(PushJob{
		CustomerID: customerID,
		Action:     action,
		QueuedAt:   time.Now().UnixMilli(),
	})
}
