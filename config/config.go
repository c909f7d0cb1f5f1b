/*
config.go - Server configuration

PURPOSE:
  Collects server settings from the environment (optionally a .env file)
  and command-line flags. Flags win over the environment.

ENVIRONMENT:
  FIELDOPS_PORT               HTTP port (default 8080)
  FIELDOPS_DB                 SQLite path, ":memory:", or "mem" (default fieldops.db)
  FIELDOPS_LOG_LEVEL          logrus level (default info)
  FIELDOPS_LOG_JSON           JSON log output (default true)
  FIELDOPS_WEEK_START         First day of the pay week (default monday)
  FIELDOPS_OVERTIME_THRESHOLD Weekly hours before overtime (default 40)
  FIELDOPS_CORS_ORIGINS       Comma-separated allowed origins

FLAGS:
  -port, -db, -seed
*/
package config

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// MemoryDB selects the in-memory store instead of SQLite.
const MemoryDB = "mem"

type Config struct {
	Port              int    `validate:"min=1,max=65535"`
	DBPath            string `validate:"required"`
	LogLevel          logrus.Level
	LogJSON           bool
	WeekStart         time.Weekday
	OvertimeThreshold decimal.Decimal
	CORSOrigins       []string `validate:"dive,required"`
	Seed              bool
}

// Load reads .env (if present), the environment, then args.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(args)
}

// FromEnv builds the config from the process environment and args only.
func FromEnv(args []string) (*Config, error) {
	cfg := &Config{
		Port:        getEnvAsInt("FIELDOPS_PORT", 8080),
		DBPath:      getEnv("FIELDOPS_DB", "fieldops.db"),
		LogJSON:     getEnvAsBool("FIELDOPS_LOG_JSON", true),
		CORSOrigins: getEnvAsList("FIELDOPS_CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}

	level, err := logrus.ParseLevel(getEnv("FIELDOPS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, generic.Invalid("FIELDOPS_LOG_LEVEL", "%v", err)
	}
	cfg.LogLevel = level

	weekStart, err := generic.ParseWeekday(getEnv("FIELDOPS_WEEK_START", "monday"))
	if err != nil {
		return nil, err
	}
	cfg.WeekStart = weekStart

	threshold, err := decimal.NewFromString(getEnv("FIELDOPS_OVERTIME_THRESHOLD", "40"))
	if err != nil || threshold.IsNegative() {
		return nil, generic.Invalid("FIELDOPS_OVERTIME_THRESHOLD", "must be a non-negative number")
	}
	cfg.OvertimeThreshold = threshold

	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" or "mem" for in-memory)`)
	flags.BoolVar(&cfg.Seed, "seed", false, "Load the demo dataset on startup")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Week returns the configured pay-week policy.
func (c *Config) Week() generic.WeekPolicy {
	return generic.WeekPolicy{Start: c.WeekStart}
}

// NewLogger returns a logger configured for the service.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(c.LogLevel)
	if c.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "@timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := getEnv(name, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsList(name string, defaultVal []string) []string {
	valStr := getEnv(name, "")
	if valStr == "" {
		return defaultVal
	}
	var list []string
	for _, v := range strings.Split(valStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}
