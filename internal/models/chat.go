package models

import "time"

// Chat представляет принадлежащий аккаунту ресурс.
// До привязки аккаунта чат привязан к отпечатку устройства,
// после миграции — только к AccountUID.
type Chat struct {
	UID               string
	AccountUID        *string
	DeviceFingerprint *string
	Title             string
	CreatedAt         time.Time
}

// DummyChat используется для приёма данных из JSON-запроса на создание чата.
type DummyChat struct {
	Title string `json:"title" validate:"required,max=200"`
}

// ChatView используется для формирования JSON-ответа клиенту.
type ChatView struct {
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// View собирает ChatView из чата.
func (c *Chat) View() ChatView {
	return ChatView{
		UID:       c.UID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
	}
}
