package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Settings struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"https://app.chainfundit.com"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminFullName string `env:"ADMIN_FULL_NAME" envDefault:"ChainFundIt Admin"`

	StripeSecretKey   string `env:"STRIPE_SECRET_KEY"`
	StripeAPIURL      string `env:"STRIPE_API_URL"`
	PaystackSecretKey string `env:"PAYSTACK_SECRET_KEY"`
	PaystackAPIURL    string `env:"PAYSTACK_API_URL" envDefault:"https://api.paystack.co"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailSender  string `env:"EMAIL_SENDER"`

	ExchangeRateAPIKey string `env:"EXCHANGE_RATE_API_KEY"`
	ExchangeRateAPIURL string `env:"EXCHANGE_RATE_API_URL" envDefault:"https://v6.exchangerate-api.com/v6"`
	GeoIPDBPath        string `env:"GEOIP_DB_PATH"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CloudinaryURL string `env:"CLOUDINARY_URL"`

	PayoutFeeRate        decimal.Decimal `env:"PAYOUT_FEE_RATE" envDefault:"0.05"`
	PayoutMaxRetries     int             `env:"PAYOUT_MAX_RETRIES" envDefault:"3"`
	PayoutRetryDelay     time.Duration   `env:"PAYOUT_RETRY_DELAY" envDefault:"60m"`
	PayoutSweepSchedule  string          `env:"PAYOUT_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	PayoutSweepBatch     int             `env:"PAYOUT_SWEEP_BATCH" envDefault:"100"`
	PayoutProviderRPS    int             `env:"PAYOUT_PROVIDER_RPS" envDefault:"5"`
	PayoutRoutes         string          `env:"PAYOUT_ROUTES"`
	ProviderTimeout      time.Duration   `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	NotificationSchedule string          `env:"NOTIFICATION_SCHEDULE" envDefault:"* * * * *"`
	RateRefreshSchedule  string          `env:"RATE_REFRESH_SCHEDULE" envDefault:"0 */6 * * *"`
}

// Load reads .env when present and parses the environment into Settings.
func Load() (*Settings, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
