// Package config загружает конфигурацию процессов Extract.
//
// Порядок применения: значения по умолчанию, YAML-файл (путь из
// EXTRACT_CONFIG или аргумента Load), затем переменные окружения.
// Перед чтением окружения подгружается .env из текущего каталога, если он есть.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/scheduler"
)

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid config")

// Config — конфигурация движка, API и CLI.
type Config struct {
	// DBURL — DSN Postgres или sqlite://путь для встроенного хранилища.
	DBURL string `yaml:"db_url"`

	// RabbitMQURL — пустая строка отключает брокер.
	RabbitMQURL string `yaml:"rabbitmq_url"`

	LogLevel string `yaml:"log_level"`

	// Language — язык сообщений плагинов.
	Language string `yaml:"language"`

	// PluginSources — каталоги Go-плагинов и имена встроенных источников.
	PluginSources []string `yaml:"plugin_sources"`

	API       APIConfig            `yaml:"api"`
	Scheduler SchedulerConfig      `yaml:"scheduler"`
	Jobs      JobsConfig           `yaml:"jobs"`
	Notify    NotifyConfig         `yaml:"notify"`
	Email     domain.EmailSettings `yaml:"email"`
}

// APIConfig — HTTP API.
type APIConfig struct {
	Port int `yaml:"port"`

	// URL — адрес API для CLI.
	URL string `yaml:"url"`
}

// SchedulerConfig — демон планировщика.
type SchedulerConfig struct {
	Port         int           `yaml:"port"`
	TickInterval time.Duration `yaml:"tick_interval"`

	// DefaultMode — режим вида задания, для которого нет настроек.
	DefaultMode string `yaml:"default_mode"`
}

// JobsConfig — параметры раннеров.
type JobsConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	Workers       int           `yaml:"workers"`
	LeaseTimeout  time.Duration `yaml:"lease_timeout"`
	EscalateAfter int           `yaml:"escalate_after"`
}

// NotifyConfig — ограничение частоты уведомлений.
type NotifyConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// Default возвращает конфигурацию для локальной разработки.
func Default() *Config {
	return &Config{
		DBURL:         repo.DefaultURL,
		RabbitMQURL:   mq.DefaultURL(),
		LogLevel:      "INFO",
		Language:      "en",
		PluginSources: []string{"builtin"},
		API: APIConfig{
			Port: 8080,
			URL:  "http://localhost:8080",
		},
		Scheduler: SchedulerConfig{
			Port:         8081,
			TickInterval: 10 * time.Second,
			DefaultMode:  string(scheduler.ModeOn),
		},
		Jobs: JobsConfig{
			BatchSize:    100,
			Workers:      4,
			LeaseTimeout: 10 * time.Minute,
		},
		Notify: NotifyConfig{
			RatePerMinute: 60,
			Burst:         10,
		},
	}
}

// Load собирает конфигурацию. path может быть пустым: тогда используется
// EXTRACT_CONFIG, а при его отсутствии файл не читается.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("EXTRACT_CONFIG")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	return nil
}

// applyEnv переопределяет значения из окружения.
func (c *Config) applyEnv() error {
	setString(&c.DBURL, "DB_URL")
	setString(&c.RabbitMQURL, "RABBITMQ_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Language, "EXTRACT_LANGUAGE")
	setString(&c.API.URL, "EXTRACT_API_URL")
	setString(&c.Scheduler.DefaultMode, "EXTRACT_DEFAULT_MODE")

	if v, ok := os.LookupEnv("EXTRACT_PLUGIN_SOURCES"); ok {
		c.PluginSources = splitList(v)
	}

	ints := []struct {
		dst *int
		key string
	}{
		{&c.API.Port, "API_PORT"},
		{&c.Scheduler.Port, "SCHED_PORT"},
		{&c.Jobs.BatchSize, "EXTRACT_BATCH_SIZE"},
		{&c.Jobs.Workers, "EXTRACT_WORKERS"},
		{&c.Jobs.EscalateAfter, "EXTRACT_ESCALATE_AFTER"},
		{&c.Notify.RatePerMinute, "EXTRACT_NOTIFY_RATE"},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Jobs.LeaseTimeout, "EXTRACT_LEASE_TIMEOUT"},
		{&c.Scheduler.TickInterval, "EXTRACT_TICK_INTERVAL"},
	}
	for _, e := range durations {
		if err := setDuration(e.dst, e.key); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("EXTRACT_EMAIL_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: EXTRACT_EMAIL_ENABLED: %w", ErrInvalid, err)
		}
		c.Email.Enabled = enabled
	}
	setString(&c.Email.From, "EXTRACT_EMAIL_FROM")
	if v, ok := os.LookupEnv("EXTRACT_EMAIL_ADMINS"); ok {
		c.Email.Admins = splitList(v)
	}
	if v, ok := os.LookupEnv("EXTRACT_EMAIL_OPERATORS"); ok {
		c.Email.Operators = splitList(v)
	}
	return nil
}

// Validate проверяет значения, которые нельзя исправить подстановкой по умолчанию.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("%w: db_url is empty", ErrInvalid)
	}
	if _, err := scheduler.ParseMode(c.Scheduler.DefaultMode); err != nil {
		return fmt.Errorf("%w: scheduler.default_mode: %w", ErrInvalid, err)
	}
	if c.Jobs.BatchSize < 0 || c.Jobs.Workers < 0 || c.Jobs.EscalateAfter < 0 {
		return fmt.Errorf("%w: jobs values must not be negative", ErrInvalid)
	}
	if c.Jobs.LeaseTimeout < 0 || c.Scheduler.TickInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 || c.Scheduler.Port <= 0 || c.Scheduler.Port > 65535 {
		return fmt.Errorf("%w: port out of range", ErrInvalid)
	}
	return nil
}

// SQLitePath возвращает путь к файлу SQLite, если DBURL имеет вид sqlite://путь.
func (c *Config) SQLitePath() (string, bool) {
	path, ok := strings.CutPrefix(c.DBURL, "sqlite://")
	return path, ok && path != ""
}

// Mode возвращает режим по умолчанию. Значение уже проверено в Validate.
func (c *Config) Mode() scheduler.Mode {
	m, err := scheduler.ParseMode(c.Scheduler.DefaultMode)
	if err != nil {
		return scheduler.ModeOn
	}
	return m
}

// APIAddr — адрес прослушивания API.
func (c *Config) APIAddr() string { return ":" + strconv.Itoa(c.API.Port) }

// SchedulerAddr — адрес /healthz и /metrics демона.
func (c *Config) SchedulerAddr() string { return ":" + strconv.Itoa(c.Scheduler.Port) }

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = d
	return nil
}

// splitList разбирает список через запятую, пустые элементы отбрасываются.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
