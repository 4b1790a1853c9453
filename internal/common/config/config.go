package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
		APIKey string `env:"ADMIN_API_KEY,required"`
	}

	Postgres struct {
		DSN string `env:"POSTGRES_DSN,required"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Kick struct {
		APIBase      string `env:"KICK_API_BASE" envDefault:"https://api.kick.com/public/v1"`
		TokenURL     string `env:"KICK_TOKEN_URL" envDefault:"https://id.kick.com/oauth/token"`
		ChatWSURL    string `env:"KICK_CHAT_WS_URL" envDefault:"wss://ws-us2.pusher.com/app/chat"`
		ClientID     string `env:"KICK_CLIENT_ID,required"`
		ClientSecret string `env:"KICK_CLIENT_SECRET,required"`
		RedirectURI  string `env:"KICK_REDIRECT_URI,required"`
	}

	YouTube struct {
		APIBase string `env:"YOUTUBE_API_BASE" envDefault:"https://www.googleapis.com/youtube/v3"`
		APIKey  string `env:"YOUTUBE_API_KEY" envDefault:""`
	}

	// MasterSecret is the process-wide symmetric key material handed in by the
	// admin layer; the token vault derives its AES key from it.
	MasterSecret string `env:"MASTER_SECRET,required"`

	Ticks struct {
		Points    time.Duration `env:"POINTS_TICK" envDefault:"60s"`
		Scheduler time.Duration `env:"SCHEDULER_TICK" envDefault:"15s"`
		Poll      time.Duration `env:"INGRESS_POLL_INTERVAL" envDefault:"10s"`
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// Missing .env is fine; production sets variables directly.
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
