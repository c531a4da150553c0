package config

import "time"

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"fern-api"`
	Port                          int    `env:"PORT" env-default:"3004"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`

	// PostgreSQL
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`

	// Marketplace fetch
	MarketplaceBaseURL        string        `env:"MARKETPLACE_BASE_URL" env-default:"https://www.ebay.co.uk"`
	FetchTimeout              time.Duration `env:"FETCH_TIMEOUT" env-default:"20s"`
	FetchRetryCount           int           `env:"FETCH_RETRY_COUNT" env-default:"2"`
	FetchUserAgent            string        `env:"FETCH_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	FetchFailureRetryInterval time.Duration `env:"FETCH_FAILURE_RETRY_INTERVAL" env-default:"6h"`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic     string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"price-events"`
	KafkaSoldPriceTopic  string   `env:"KAFKA_SOLD_PRICE_TOPIC" env-default:"external-sold-prices"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"fern-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Batch jobs
	CheckingBudgetSeconds       int    `env:"CHECKING_BUDGET_SECONDS" env-default:"540"`
	SourcingBudgetSeconds       int    `env:"SOURCING_BUDGET_SECONDS" env-default:"540"`
	ReconciliationBudgetSeconds int    `env:"RECONCILIATION_BUDGET_SECONDS" env-default:"540"`
	StatsBudgetSeconds          int    `env:"STATS_BUDGET_SECONDS" env-default:"540"`
	ArchivalBudgetSeconds       int    `env:"ARCHIVAL_BUDGET_SECONDS" env-default:"300"`
	MaxConcurrency              int    `env:"MAX_CONCURRENCY" env-default:"8"`
	QueueScale                  int    `env:"QUEUE_SCALE" env-default:"4"`
	CheckingCron                string `env:"CHECKING_CRON" env-default:"*/15 * * * *"`
	SourcingCron                string `env:"SOURCING_CRON" env-default:"0 */4 * * *"`
	ReconciliationCron          string `env:"RECONCILIATION_CRON" env-default:"30 */6 * * *"`
	StatsCron                   string `env:"STATS_CRON" env-default:"15 * * * *"`
	ArchivalCron                string `env:"ARCHIVAL_CRON" env-default:"45 2 * * *"`

	// Domain tunables
	ArchiveAfterDays      int      `env:"ARCHIVE_AFTER_DAYS" env-default:"180"`
	ListingAgeCutoffDays  int      `env:"LISTING_AGE_CUTOFF_DAYS" env-default:"90"`
	StatPeriodSizeDays    []int    `env:"STAT_PERIOD_SIZE_DAYS" env-default:"1,14,90"`
	SupportedCurrencies   []string `env:"SUPPORTED_CURRENCIES" env-default:"GBP,USD,EUR"`
	StatMinimumSampleSize int      `env:"STAT_MINIMUM_SAMPLE_SIZE" env-default:"3"`
}
