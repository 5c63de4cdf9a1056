package rabbitmq

// QueueConfig — имя очереди и ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди воркера уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.account-registered", RoutingKey: "registered"},
		{QueueName: "notification.account-deleted", RoutingKey: "deleted"},
		{QueueName: "notification.account-restored", RoutingKey: "restored"},
	}
}
