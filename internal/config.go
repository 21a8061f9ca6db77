package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,default=8080"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	RateLimit         float64       `env:"RATE_LIMIT_PER_SECOND,default=20"`
	RateBurst         int           `env:"RATE_LIMIT_BURST,default=40"`

	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=4000"`
	MaxSubscriptions int    `env:"MAX_SUBSCRIPTIONS,default=5"`
	ProfileCacheSize int    `env:"PROFILE_CACHE_SIZE,default=500"`
	MessageCacheSize int    `env:"MESSAGE_CACHE_SIZE,default=20"`
	PageSize         int    `env:"PAGE_SIZE,default=50"`

	ChannelBufferSize int           `env:"CHANNEL_BUFFER_SIZE,default=64"`
	DeliveryTimeout   time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	BufferSize        int           `env:"BUFFER_SIZE,default=256"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=5s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=30s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	// Notifications are only logged when AMQP_URL is empty.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE,default=chat-core.notifications"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
