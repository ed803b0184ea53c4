package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "time"     // time resolves the service timezone
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The types reflect how the values are used
// in the application: strings for identifiers and secrets, ints for
// durations and costs, and a resolved *time.Location for the timezone
// that "today" buckets in queue stats are computed in.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing

    // Queue tuning.  The estimate offsets feed the completion promise
    // computed at enqueue time; DefaultProcessingHours seeds wait-time
    // estimates until real completion history exists.
    EstimateNormalHours    int            // estimated turnaround for priority 0
    EstimateHighHours      int            // estimated turnaround for priority 1
    EstimateUrgentHours    int            // estimated turnaround for priority 2
    DefaultProcessingHours int            // wait-estimate fallback with no history
    Timezone               *time.Location // timezone for daily stat buckets
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.  Queue
// tuning variables are optional and fall back to sensible defaults.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),  // environment (dev/test/prod)
        Port:           must("APP_PORT"), // port to bind the HTTP server
        DBUser:         must("DB_USER"),  // database user
        DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:         must("DB_HOST"),  // database host
        DBPort:         must("DB_PORT"),  // database port
        DBName:         must("DB_NAME"),  // database name
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),

        EstimateNormalHours:    intDefault("ESTIMATE_NORMAL_HOURS", 48),
        EstimateHighHours:      intDefault("ESTIMATE_HIGH_HOURS", 24),
        EstimateUrgentHours:    intDefault("ESTIMATE_URGENT_HOURS", 12),
        DefaultProcessingHours: intDefault("DEFAULT_PROCESSING_HOURS", 24),
        Timezone:               timezone("SERVICE_TIMEZONE"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// intDefault reads an optional integer variable, returning def when it
// is unset.  A malformed value is fatal just like mustInt.
func intDefault(key string, def int) int {
    s, ok := os.LookupEnv(key)
    if !ok || s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// timezone resolves an optional IANA timezone name, defaulting to UTC.
// An unknown name is fatal: silently falling back would shift every
// daily stat bucket.
func timezone(key string) *time.Location {
    name, ok := os.LookupEnv(key)
    if !ok || name == "" {
        return time.UTC
    }
    loc, err := time.LoadLocation(name)
    if err != nil {
        log.Fatalf("invalid timezone for %s: %q", key, name)
    }
    return loc
}
