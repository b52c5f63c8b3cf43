package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Quota store backends.
const (
	QuotaStoreMemory   = "memory"
	QuotaStoreRedis    = "redis"
	QuotaStorePostgres = "postgres"
)

type (
	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Chat     ChatConfig
		Quota    QuotaConfig
		Redis    RedisConfig
		Database DatabaseConfig
		Activity ActivityConfig
		Tasks    TasksConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	ChatConfig struct {
		Model             string
		APIKey            string
		RequestsPerMinute int
		TokensPerDay      int
		RequestTimeout    time.Duration
		UpstreamRPS       float64 // 0 disables the upstream throttle
	}

	QuotaConfig struct {
		Store string // memory | redis | postgres
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ActivityConfig struct {
		BackendURL string // empty: console logger
		Timeout    time.Duration
	}

	TasksConfig struct {
		Workers   int
		QueueSize int
		Timeout   time.Duration
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` (if present) and the environment.
// Environment variables are prefixed with the current ENV, eg. `PROD_SECRETKEY`, `DEV_CHAT.APIKEY`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := fromViper(v)
	conf.Env = env
	conf.WorkDir = wd
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "EduLearn")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("chat.model", "gemini-2.0-flash")
	v.SetDefault("chat.apiKey", "")
	v.SetDefault("chat.requestsPerMinute", 10)
	v.SetDefault("chat.tokensPerDay", 100000)
	v.SetDefault("chat.requestTimeout", 2*time.Minute)
	v.SetDefault("chat.upstreamRPS", 0.0)

	v.SetDefault("quota.store", QuotaStoreMemory)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "edulearn")
	v.SetDefault("database.user", "edulearn")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("activity.backendURL", "")
	v.SetDefault("activity.timeout", 5*time.Second)

	v.SetDefault("tasks.workers", 4)
	v.SetDefault("tasks.queueSize", 256)
	v.SetDefault("tasks.timeout", 10*time.Second)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Chat: ChatConfig{
			Model:             v.GetString("chat.model"),
			APIKey:            v.GetString("chat.apiKey"),
			RequestsPerMinute: v.GetInt("chat.requestsPerMinute"),
			TokensPerDay:      v.GetInt("chat.tokensPerDay"),
			RequestTimeout:    v.GetDuration("chat.requestTimeout"),
			UpstreamRPS:       v.GetFloat64("chat.upstreamRPS"),
		},
		Quota: QuotaConfig{
			Store: strings.ToLower(v.GetString("quota.store")),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Activity: ActivityConfig{
			BackendURL: strings.TrimRight(v.GetString("activity.backendURL"), "/"),
			Timeout:    v.GetDuration("activity.timeout"),
		},
		Tasks: TasksConfig{
			Workers:   v.GetInt("tasks.workers"),
			QueueSize: v.GetInt("tasks.queueSize"),
			Timeout:   v.GetDuration("tasks.timeout"),
		},
	}
}
