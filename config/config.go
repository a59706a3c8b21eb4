package config

import (
	"database/sql"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"time"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Analysis    Analysis      `yaml:"analysis"`
	Pipeline    Pipeline      `yaml:"pipeline"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

// Analysis configures the remote analysis service. URL empty means the
// service is unconfigured; dispatch refuses to run rather than skipping.
type Analysis struct {
	URL           string        `yaml:"url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// Pipeline holds the tunables of segment planning and hand reconciliation.
type Pipeline struct {
	SegmentDurationCap float64 `yaml:"segment_duration_cap_seconds"`
	DedupThreshold     float64 `yaml:"dedup_threshold_seconds"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("analysis.submit_timeout_seconds", 10)
	viper.SetDefault("analysis.poll_interval_seconds", 15)
	viper.SetDefault("pipeline.segment_duration_cap_seconds", 1800)
	viper.SetDefault("pipeline.dedup_threshold_seconds", 5)
	viper.SetDefault("server.workers", 4)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Analysis: Analysis{
			URL:           viper.GetString("analysis.url"),
			SubmitTimeout: time.Duration(viper.GetInt("analysis.submit_timeout_seconds")) * time.Second,
			PollInterval:  time.Duration(viper.GetInt("analysis.poll_interval_seconds")) * time.Second,
		},
		Pipeline: Pipeline{
			SegmentDurationCap: viper.GetFloat64("pipeline.segment_duration_cap_seconds"),
			DedupThreshold:     viper.GetFloat64("pipeline.dedup_threshold_seconds"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
