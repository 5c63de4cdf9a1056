package models

import "time"

// Session представляет одну аутентифицированную сессию устройства или браузера.
// Отзыв сессии — это установка флага Revoked, запись никогда не удаляется,
// чтобы сохранить историю для аудита.
type Session struct {
	UID           string    // Суррогатный ключ сессии
	AccountUID    string    // Аккаунт-владелец
	DeviceLabel   string    // Например "iPhone 14 Pro, Safari"
	NetworkOrigin string    // Адрес, с которого создана сессия
	CreatedAt     time.Time
	LastSeenAt    time.Time
	Revoked       bool
}

// SessionView используется для формирования JSON-ответа со списком сессий.
// Поле Current заполняется обработчиком по идентификатору сессии вызывающего.
type SessionView struct {
	UID           string    `json:"uid"`
	DeviceLabel   string    `json:"device_label"`
	NetworkOrigin string    `json:"network_origin"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	Revoked       bool      `json:"revoked"`
	Current       bool      `json:"current"`
}
