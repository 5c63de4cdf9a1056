package models

import "errors"

// Перечисленные ошибки образуют таксономию ядра: обработчики сопоставляют их
// через errors.Is и выбирают HTTP-статус, вместо того чтобы разбирать текст.
var (
	// ErrInvalidIdentityAssertion — удостоверение провайдера идентичности
	// не прошло проверку подписи или истекло.
	ErrInvalidIdentityAssertion = errors.New("invalid identity assertion")

	// ErrRateLimited — превышен потолок создания trial-аккаунтов с одного адреса.
	ErrRateLimited = errors.New("rate limited")

	// ErrAccountPermanentlyDeleted — аккаунт удалён и льготный период истёк.
	// Терминальная ошибка, повтор не поможет.
	ErrAccountPermanentlyDeleted = errors.New("account permanently deleted")

	// ErrWebhookSignatureInvalid — подпись webhook не совпала, состояние не менялось.
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")

	// ErrMigrationConflict — конкурентная привязка выиграла гонку миграции.
	// Транзиентная ошибка: повторный вызов привязки разрешается через поиск.
	ErrMigrationConflict = errors.New("migration conflict")

	// ErrTrialExhausted — на trial-аккаунте закончились кредиты.
	ErrTrialExhausted = errors.New("trial exhausted")

	// ErrAccountNotFound — аккаунт не найден в хранилище.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSessionNotFound — сессия не найдена или принадлежит другому аккаунту.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked — сессия отозвана, токен больше не действителен.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrNoSubscription — у биллинг-провайдера нет активной подписки для подписчика.
	ErrNoSubscription = errors.New("no active subscription")
)
