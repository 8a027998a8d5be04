package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool

	// Admin API auth
	JWTSecret            string
	JWTExpiryDuration    time.Duration
	JWTIssuer            string
	OperatorPasswordHash string // bcrypt hash of the operator password

	// Card processor
	ProcessorBaseURL string
	ProcessorAPIKey  string
	ProcessorTimeout time.Duration

	// Payday engine
	ProcessorWorkers int    // bounded fan-out width for processor calls
	PaymentDumpDir   string // where settlement-failure CSV dumps land
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_EXPIRY_DURATION", "1h")
	viper.SetDefault("JWT_ISSUER", "payday-backend")
	viper.SetDefault("OPERATOR_PASSWORD_HASH", "")
	viper.SetDefault("PROCESSOR_BASE_URL", "")
	viper.SetDefault("PROCESSOR_API_KEY", "")
	viper.SetDefault("PROCESSOR_TIMEOUT", "30s")
	viper.SetDefault("PROCESSOR_WORKERS", 5)
	viper.SetDefault("PAYMENT_DUMP_DIR", ".")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "a-very-secret-key-should-be-longer-and-random" {
		log.Println("Warning: JWT_SECRET not set. Using default insecure key.")
	}

	jwtExpiryStr := viper.GetString("JWT_EXPIRY_DURATION")
	jwtExpiryDuration, err := time.ParseDuration(jwtExpiryStr)
	if err != nil {
		jwtExpiryDuration = time.Hour
		log.Printf("Warning: Invalid value for JWT_EXPIRY_DURATION ('%s'). Defaulting to %s.\n", jwtExpiryStr, jwtExpiryDuration)
	}
	cfg.JWTExpiryDuration = jwtExpiryDuration
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")

	cfg.OperatorPasswordHash = viper.GetString("OPERATOR_PASSWORD_HASH")
	if cfg.OperatorPasswordHash == "" {
		log.Println("Warning: OPERATOR_PASSWORD_HASH not set. Operator login is disabled.")
	}

	cfg.ProcessorBaseURL = viper.GetString("PROCESSOR_BASE_URL")
	if cfg.ProcessorBaseURL == "" {
		log.Println("Warning: PROCESSOR_BASE_URL not set.")
	}
	cfg.ProcessorAPIKey = viper.GetString("PROCESSOR_API_KEY")

	processorTimeoutStr := viper.GetString("PROCESSOR_TIMEOUT")
	processorTimeout, err := time.ParseDuration(processorTimeoutStr)
	if err != nil {
		processorTimeout = 30 * time.Second
		log.Printf("Warning: Invalid value for PROCESSOR_TIMEOUT ('%s'). Defaulting to %s.\n", processorTimeoutStr, processorTimeout)
	}
	cfg.ProcessorTimeout = processorTimeout

	cfg.ProcessorWorkers = viper.GetInt("PROCESSOR_WORKERS")
	if cfg.ProcessorWorkers <= 0 {
		cfg.ProcessorWorkers = 5
	}

	cfg.PaymentDumpDir = viper.GetString("PAYMENT_DUMP_DIR")

	return cfg, nil
}
