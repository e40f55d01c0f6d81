package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ModeLocal  = "local"
	ModeAI     = "ai"
	ModeOnline = "online"

	TransportRelay = "relay"
	TransportPoll  = "poll"

	BackendRedis  = "redis"
	BackendDynamo = "dynamo"
)

type Config struct {
	LogLevel   string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	AppTag     string `yaml:"app-tag" env:"APP_TAG" env-default:"go-tic-tac-toe"`
	Redis      Redis  `yaml:"redis"`
	Dynamo     Dynamo `yaml:"dynamo"`
	Relay      Relay  `yaml:"relay"`
	Poll       Poll   `yaml:"poll"`
	AI         AI     `yaml:"ai"`
	Client     Client `yaml:"client"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Dynamo struct {
	Region    string `yaml:"region" env:"AWS_REGION" env-default:"eu-central-1"`
	Endpoint  string `yaml:"endpoint" env:"DYNAMO_ENDPOINT"`
	TableName string `yaml:"table-name" env:"DYNAMO_TABLE" env-default:"tictactoe-games"`
}

type Relay struct {
	URL             string        `yaml:"url" env:"RELAY_URL" env-default:"ws://localhost:9091/ws"`
	MaxReconnectGap time.Duration `yaml:"max-reconnect-gap" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write-timeout" env-default:"10s"`
}

type Poll struct {
	Backend  string        `yaml:"backend" env:"POLL_BACKEND" env-default:"redis"`
	Interval time.Duration `yaml:"interval" env-default:"1s"`
	GameTTL  time.Duration `yaml:"game-ttl" env-default:"24h"`
}

type AI struct {
	APIKey      string        `yaml:"api-key" env:"GEMINI_API_KEY"`
	Model       string        `yaml:"model" env-default:"gemini-2.5-flash"`
	Temperature float32       `yaml:"temperature" env-default:"0.5"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	MoveDelay   time.Duration `yaml:"move-delay" env-default:"500ms"`
}

type Client struct {
	Name        string        `yaml:"name" env:"TTT_NAME" env-default:"Player"`
	Mode        string        `yaml:"mode" env:"TTT_MODE" env-default:"online"`
	Transport   string        `yaml:"transport" env:"TTT_TRANSPORT" env-default:"relay"`
	Join        string        `yaml:"join" env:"TTT_JOIN"`
	BaseURL     string        `yaml:"base-url" env:"TTT_BASE_URL" env-default:"http://localhost:9090/"`
	QRPath      string        `yaml:"qr-path" env:"TTT_QR_PATH"`
	JoinTimeout time.Duration `yaml:"join-timeout" env-default:"30s"`
	JoinRetry   time.Duration `yaml:"join-retry" env-default:"3s"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

// Load - reads the config file, falling back to environment variables when it does not exist.
func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}

		return config, nil
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
