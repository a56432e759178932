// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/config"
)

const serviceName = "canteen-voting"

var baseLogger *logrus.Entry

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Setup builds the base logger for the given environment and level.  Text
// output is used in development, JSON everywhere else.
func Setup(env, level string) (*logrus.Entry, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(formatterForEnv(env))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     env,
	})
	return baseLogger, nil
}

// Logger returns the configured base logger, or a default production logger
// when Setup has not run yet (early boot errors).
func Logger() *logrus.Entry {
	if baseLogger != nil {
		return baseLogger
	}
	logger := logrus.New()
	logger.SetFormatter(formatterForEnv(config.EnvProduction))
	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     config.EnvProduction,
	})
	return baseLogger
}

// Component returns the base logger tagged with a component name.
func Component(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}

func formatterForEnv(env string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}
	if strings.EqualFold(env, config.EnvDevelopment) {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	if strings.TrimSpace(value) == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}
