package config // package config loads application configuration from environment variables

import (
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"

    "github.com/sirupsen/logrus"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the
// rest fall back to defaults that suit local development.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    LogLevel  string // logrus level name
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    Migrate   bool   // create missing tables at startup
    JWTSecret string // secret used to verify access tokens

    TaxPercent float64 // flat tax applied to the discounted subtotal

    SweepInterval time.Duration // how often the background sweeper runs
    SweepLockTTL  time.Duration // lifetime of the cross-instance sweep lock

    RabbitURL         string // AMQP URL; notifications are logged only when empty
    NotificationQueue string // queue the notification publisher writes to
    NotificationDir   string // directory the consumer appends delivered notifications to

    StripeSecretKey     string // payments are disabled when empty
    StripeWebhookSecret string
    PaymentCurrency     string

    ShutdownTimeout time.Duration
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables cause the program to exit with a
// fatal log message.
func Load() Config {
    return Config{
        Env:       must("APP_ENV"),
        Port:      must("APP_PORT"),
        LogLevel:  envStr("LOG_LEVEL", "info"),
        DBUser:    must("DB_USER"),
        DBPass:    os.Getenv("DB_PASS"), // empty allowed
        DBHost:    must("DB_HOST"),
        DBPort:    must("DB_PORT"),
        DBName:    must("DB_NAME"),
        Migrate:   envBool("DB_MIGRATE", true),
        JWTSecret: must("JWT_SECRET"),

        TaxPercent: envFloat("TAX_PERCENT", 0),

        SweepInterval: envDur("SWEEP_INTERVAL", time.Hour),
        SweepLockTTL:  envDur("SWEEP_LOCK_TTL", 50*time.Minute),

        RabbitURL:         os.Getenv("RABBITMQ_URL"),
        NotificationQueue: envStr("NOTIFICATION_QUEUE", "reservation.notifications"),
        NotificationDir:   envStr("NOTIFICATION_LOG_DIR", "logs"),

        StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
        StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
        PaymentCurrency:     envStr("PAYMENT_CURRENCY", "usd"),

        ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        logrus.Fatalf("missing required env var: %s", key)
    }
    return v
}

func envFloat(k string, d float64) float64 {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    f, err := strconv.ParseFloat(v, 64)
    if err != nil || f < 0 {
        logrus.Warnf("invalid %s=%q, using %v", k, v, d)
        return d
    }
    return f
}
