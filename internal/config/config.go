package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string         // application environment (development/production/test)
	Port           string         // HTTP port to listen on
	LogLevel       string         // logrus level name
	DBDriver       string         // mysql (default) or sqlite
	DBUser         string         // database username
	DBPass         string         // database password (optional)
	DBHost         string         // database host address
	DBPort         string         // database port number
	DBName         string         // database name, or file path for sqlite
	JWTSecret      string         // secret used to sign JWTs
	AccessTTLMin   int            // access token time-to-live in minutes
	RefreshTTLDays int            // refresh token time-to-live in days
	BcryptCost     int            // bcrypt cost for password hashing
	VotingTZ       *time.Location // location used to bucket votes into calendar months
	RequestTimeout time.Duration  // upper bound for store calls made by a single request
	CORSOrigins    []string       // allowed browser origins for the SPA
	AMQPURL        string         // RabbitMQ URL for vote events (empty disables publishing)
	AuditConsumer  bool           // run the vote audit consumer in-process
	AuditLogDir    string         // directory receiving votes.log
}

// Load reads configuration values from environment variables and returns a
// Config.  In development a .env file in the working directory is loaded
// first; variables already present in the environment win.  Every missing or
// malformed required value is reported in the returned error.
func Load() (Config, error) {
	if strings.EqualFold(os.Getenv("APP_ENV"), EnvDevelopment) {
		_ = godotenv.Load()
	}

	l := &loader{}
	cfg := Config{
		Env:            l.must("APP_ENV"),
		Port:           l.must("APP_PORT"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", DriverMySQL)),
		DBPass:         os.Getenv("DB_PASS"),
		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     l.mustInt("BCRYPT_COST"),
		RequestTimeout: parseDur(getenv("REQUEST_TIMEOUT", "5s")),
		CORSOrigins:    splitList(getenv("CORS_ALLOW_ORIGINS", "*")),
		AMQPURL:        amqpURL(),
		AuditConsumer:  envBool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogDir:    getenv("AUDIT_LOG_DIR", "logs"),
	}

	switch cfg.DBDriver {
	case DriverMySQL:
		cfg.DBUser = l.must("DB_USER")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	case DriverSQLite:
		cfg.DBName = getenv("DB_NAME", "canteen.db")
	default:
		l.fail(fmt.Errorf("unsupported DB_DRIVER: %q", cfg.DBDriver))
	}

	tz, err := time.LoadLocation(getenv("VOTING_TIMEZONE", "UTC"))
	if err != nil {
		l.fail(fmt.Errorf("invalid VOTING_TIMEZONE: %w", err))
		tz = time.UTC
	}
	cfg.VotingTZ = tz

	if cfg.BcryptCost != 0 && (cfg.BcryptCost < 4 || cfg.BcryptCost > 31) {
		l.fail(fmt.Errorf("BCRYPT_COST out of range: %d", cfg.BcryptCost))
	}

	if len(l.errs) > 0 {
		return Config{}, errors.Join(l.errs...)
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool { return strings.EqualFold(c.Env, EnvDevelopment) }

// loader accumulates configuration errors so they can be reported together.
type loader struct{ errs []error }

func (l *loader) fail(err error) { l.errs = append(l.errs, err) }

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.fail(fmt.Errorf("missing required env var: %s", key))
		return ""
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail(fmt.Errorf("invalid int for %s: %q", key, s))
		return 0
	}
	return n
}

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
