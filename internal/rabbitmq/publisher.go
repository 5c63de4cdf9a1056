package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// AccountEvent — событие жизненного цикла аккаунта для воркера уведомлений.
type AccountEvent struct {
	AccountUID string    `json:"account_uid"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher публикует события аккаунтов в exchange account-events.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создаёт Publisher поверх готового канала.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Publish сериализует событие и публикует его с ключом маршрутизации.
func (p *Publisher) Publish(routingKey string, event AccountEvent) error {
	const op = "rabbitmq.Publish"
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		"account-events",
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
