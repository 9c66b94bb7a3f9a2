package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets (the Google client secret, the JWT
// signing secret) are never logged; the remaining values are plain
// identifiers, addresses and durations.
type Config struct {
    Env                string // application environment (e.g. "dev", "prod")
    Port               string // HTTP port to listen on
    DBUser             string // database username
    DBPass             string // database password (optional)
    DBHost             string // database host address
    DBPort             string // database port number
    DBName             string // database name
    JWTSecret          string // secret used to sign session JWTs
    SessionTTLHours    int    // session cookie/JWT time-to-live in hours
    ExchangeTTLMin     int    // exchange token time-to-live in minutes
    GoogleClientID     string // OAuth client id issued by Google
    GoogleClientSecret string // OAuth client secret issued by Google
    GoogleRedirectURL  string // OAuth callback URL registered with Google
    FrontendURL        string // frontend origin that callback redirects target
    StorageDir         string // directory for imported file blobs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  TTLs and the storage
// directory fall back to sensible defaults when unset.
func Load() Config {
    return Config{
        Env:                must("APP_ENV"),              // environment (dev/test/prod)
        Port:               must("APP_PORT"),             // port to bind the HTTP server
        DBUser:             must("DB_USER"),              // database user
        DBPass:             os.Getenv("DB_PASS"),         // database password (empty allowed)
        DBHost:             must("DB_HOST"),              // database host
        DBPort:             must("DB_PORT"),              // database port
        DBName:             must("DB_NAME"),              // database name
        JWTSecret:          must("JWT_SECRET"),           // secret used for signing session JWTs
        SessionTTLHours:    intOr("SESSION_TTL_HOURS", 8),      // browser session lifetime
        ExchangeTTLMin:     intOr("EXCHANGE_TOKEN_TTL_MIN", 5), // one-shot exchange token lifetime
        GoogleClientID:     must("GOOGLE_CLIENT_ID"),     // OAuth client id
        GoogleClientSecret: must("GOOGLE_CLIENT_SECRET"), // OAuth client secret
        GoogleRedirectURL:  must("GOOGLE_REDIRECT_URL"),  // OAuth callback URL
        FrontendURL:        must("FRONTEND_URL"),         // frontend origin for redirects
        StorageDir:         strOr("STORAGE_DIR", "uploads"), // blob storage directory
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

// strOr returns the value of an optional environment variable, or the
// provided default when the variable is unset or empty.
func strOr(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// intOr is like strOr but converts the retrieved string into an integer.
// Invalid values fall back to the default rather than aborting startup.
func intOr(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        log.Printf("invalid int for %s: %q, using default %d", key, v, def)
        return def
    }
    return n
}
