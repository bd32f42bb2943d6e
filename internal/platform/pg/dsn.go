package pg

import (
	"net/url"
	"strconv"
	"strings"

	"redditstudy/internal/shared"
)

// DSNConfig - разобранная строка подключения PostgreSQL.
type DSNConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Остальные параметры запроса (application_name, connect_timeout, ...)
	Params map[string]string
}

// ParseDSN разбирает строку подключения в URL-форме (postgres:// или postgresql://).
// Форму "host=... user=..." golang-migrate не принимает, поэтому она отклоняется.
func ParseDSN(dsn string) (DSNConfig, error) {
	cfg := DSNConfig{Params: make(map[string]string)}

	u, err := url.Parse(dsn)
	if err != nil {
		return cfg, shared.Validationf("pg: invalid DSN format: %v", redactErr(err, dsn))
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return cfg, shared.Validationf("pg: unsupported DSN scheme %q", u.Scheme)
	}

	cfg.Host = u.Hostname()
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	cfg.Port = 5432
	if p := u.Port(); p != "" {
		if cfg.Port, err = strconv.Atoi(p); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
			return cfg, shared.Validationf("pg: invalid port %q", p)
		}
	}

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	cfg.Database = strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	cfg.SSLMode = query.Get("sslmode")
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}
	for key, values := range query {
		if key != "sslmode" && len(values) > 0 {
			cfg.Params[key] = values[0]
		}
	}
	return cfg, nil
}

// RedactDSN возвращает DSN с замаскированным паролем, пригодный для логов.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	return u.Redacted()
}

// redactErr убирает DSN из текста ошибки url.Parse (он содержит пароль).
func redactErr(err error, dsn string) string {
	return strings.ReplaceAll(err.Error(), dsn, "<dsn>")
}
