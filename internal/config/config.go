// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RabbitConnectionString  string `yaml:"rabbit_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	SessionToken            `yaml:"session_token"`
	IdentityProvider        `yaml:"identity_provider"`
	BillingProvider         `yaml:"billing_provider"`
	TrialPolicy             `yaml:"trial_policy"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"5s"`
}

// SessionToken структура для выпуска сервисных токенов сессий
type SessionToken struct {
	SecretKey string        `yaml:"secret_key"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"720h"`
}

// IdentityProvider структура для проверки удостоверений внешнего
// провайдера идентичности (общий секрет подписи)
type IdentityProvider struct {
	AssertionSecret string `yaml:"assertion_secret"`
}

// BillingProvider структура для доступа к биллинг-провайдеру
type BillingProvider struct {
	APIURL        string `yaml:"api_url" env-default:"https://api.billing.example.com/v1"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// TrialPolicy структура с параметрами trial-периода
type TrialPolicy struct {
	StartingCredits     int `yaml:"starting_credits" env-default:"5"`
	RegistrationCredits int `yaml:"registration_credits" env-default:"5"`
	MaxTrialsPerAddress int `yaml:"max_trials_per_address" env-default:"3"`
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
