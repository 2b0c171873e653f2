package buildCFG

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventsphere/internal/mailer"
)

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	FrontendURL    string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type AuthConfig struct {
	JWTSecret string
}

type UploadsConfig struct {
	Dir string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) *ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
	}

	var origins []string
	if raw := cfg.GetString("server.allowed_origins"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}

	frontendURL := cfg.GetString("server.frontend_url")
	if frontendURL == "" {
		frontendURL = "http://127.0.0.1:5500"
	}

	log.Info().Msgf("Server configured on port %s", port)
	return &ServerConfig{Port: port, AllowedOrigins: origins, FrontendURL: frontendURL}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is not set")
	}

	var slaveDSNs []string
	if raw := cfg.GetString("database.slave_dsns"); raw != "" {
		for _, dsn := range strings.Split(raw, ",") {
			slaveDSNs = append(slaveDSNs, strings.TrimSpace(dsn))
		}
	}

	maxOpen := cfg.GetInt("database.max_open_conns")
	if maxOpen == 0 {
		maxOpen = 10
	}
	maxIdle := cfg.GetInt("database.max_idle_conns")
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetimeSec := cfg.GetInt("database.conn_max_lifetime_seconds")
	if lifetimeSec == 0 {
		lifetimeSec = 300
	}

	opts := &dbpg.Options{
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: time.Duration(lifetimeSec) * time.Second,
	}

	log.Info().Int("slaves", len(slaveDSNs)).Msg("Database config built")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (*RabbitConfig, error) {
	url := cfg.GetString("rabbit.url")
	if url == "" {
		return nil, fmt.Errorf("rabbit.url is not set")
	}

	exchange := cfg.GetString("rabbit.exchange")
	if exchange == "" {
		exchange = "notifications"
	}
	queue := cfg.GetString("rabbit.queue")
	if queue == "" {
		queue = "notifications"
	}

	log.Info().Msgf("RabbitMQ config built (exchange=%s, queue=%s)", exchange, queue)
	return &RabbitConfig{Url: url, Exchange: exchange, Queue: queue}, nil
}

// BuildMailConfig makes SMTP settings an explicit injected structure rather
// than ambient environment lookups inside the mailer.
func BuildMailConfig(cfg *config.Config, log *zerolog.Logger) (mailer.Config, error) {
	mc := mailer.Config{
		Host:     cfg.GetString("mail.host"),
		Port:     cfg.GetString("mail.port"),
		User:     cfg.GetString("mail.user"),
		Password: cfg.GetString("mail.password"),
		From:     cfg.GetString("mail.from"),
	}
	if mc.Host == "" || mc.Port == "" {
		return mailer.Config{}, fmt.Errorf("mail.host and mail.port must be set")
	}
	if mc.From == "" {
		mc.From = mc.User
	}

	log.Info().Msgf("Mail config built (host=%s)", mc.Host)
	return mc, nil
}

func BuildAuthConfig(cfg *config.Config, log *zerolog.Logger) (*AuthConfig, error) {
	secret := cfg.GetString("auth.jwt_secret")
	if secret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is not set")
	}

	log.Info().Msg("Auth config built")
	return &AuthConfig{JWTSecret: secret}, nil
}

func BuildUploadsConfig(cfg *config.Config, log *zerolog.Logger) *UploadsConfig {
	dir := cfg.GetString("uploads.dir")
	if dir == "" {
		dir = "uploads"
	}

	log.Info().Msgf("Uploads config built (dir=%s)", dir)
	return &UploadsConfig{Dir: dir}
}
