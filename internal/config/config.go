package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SeatOrderRandom    = "random"
	SeatOrderJoinOrder = "join-order"

	TerminationAllButOne   = "all-but-one"
	TerminationFirstToGoal = "first-to-goal"
)

type Config struct {
	LogLevel          string     `yaml:"log-level" env-default:"info"`
	HTTPPort          string     `yaml:"http-port" env-default:"9090"`
	SocketPort        string     `yaml:"socket-port" env-default:"8080"`
	Redis             Redis      `yaml:"redis"`
	Game              Game       `yaml:"game"`
	Dictionary        Dictionary `yaml:"dictionary"`
	SQLiteStoragePath string     `yaml:"sqlite-storage-path" env-default:"./shirisugo.db"`
	JWTSecretKey      string     `yaml:"jwt-secret-key"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

// Game holds the rule knobs for a room. Defaults mirror what the webapp
// displays: a 2..8 roulette wheel and a 100-cell board.
type Game struct {
	RoomCapacity  int           `yaml:"room-capacity" env-default:"4"`
	Goal          int           `yaml:"goal" env-default:"100"`
	RollMin       int           `yaml:"roll-min" env-default:"2"`
	RollMax       int           `yaml:"roll-max" env-default:"8"`
	TurnTime      time.Duration `yaml:"turn-time" env-default:"30s"`
	DisplayPause  time.Duration `yaml:"display-pause" env-default:"2s"`
	CountdownFrom int           `yaml:"countdown-from" env-default:"5"`
	SeatOrder     string        `yaml:"seat-order" env-default:"random"`
	Termination   string        `yaml:"termination" env-default:"all-but-one"`
	RejectRepeats bool          `yaml:"reject-repeats" env-default:"true"`
}

type Dictionary struct {
	BaseURL        string        `yaml:"base-url" env-default:"https://www.weblio.jp"`
	Timeout        time.Duration `yaml:"timeout" env-default:"5s"`
	NotFoundMarker string        `yaml:"not-found-marker" env-default:"該当する単語が見つかりません"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
