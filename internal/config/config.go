package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types

    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database credentials are only required when the
// MySQL driver is selected; the embedded SQLite driver needs just a path.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    LogLevel     string // slog level: debug, info, warn, error
    DBDriver     string // "mysql" or "sqlite"
    DBPath       string // sqlite file path (":memory:" allowed)
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to verify tenant JWTs
    AccessTTLMin int    // lifetime of tokens minted by the CLI, in minutes
}

// LoadDotEnv loads variables from the given files (default ".env") into the
// process environment.  Variables that are already set win.  Missing files
// are not an error.
func LoadDotEnv(files ...string) {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if _, err := os.Stat(f); err != nil {
            continue
        }
        if err := godotenv.Load(f); err != nil {
            log.Printf("config: cannot load %s: %v", f, err)
        }
    }
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:          envStr("APP_ENV", "dev"),
        Port:         envStr("APP_PORT", "8080"),
        LogLevel:     envStr("LOG_LEVEL", "info"),
        DBDriver:     envStr("DB_DRIVER", "mysql"),
        JWTSecret:    must("JWT_SECRET"),                   // secret used for verifying JWTs
        AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),   // TTL for CLI-minted tokens
    }
    switch cfg.DBDriver {
    case "sqlite":
        cfg.DBPath = envStr("DB_PATH", "data/reservations.db")
    case "mysql":
        cfg.DBUser = must("DB_USER")            // database user
        cfg.DBPass = os.Getenv("DB_PASS")       // database password (empty allowed)
        cfg.DBHost = must("DB_HOST")            // database host
        cfg.DBPort = must("DB_PORT")            // database port
        cfg.DBName = must("DB_NAME")            // database name
    default:
        log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
    }
    return cfg
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
