package app

import (
	"time"

	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/utils"
)

type Config struct {
	Port    string
	LogMode string

	MetadataServiceURL string
	ProjectServiceURL  string
	QueueServiceURL    string
	LockServiceURL     string

	KafkaURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	DownloadKey    string
	DownloadExpiry time.Duration
	MaxPreviewSize int64

	EssentialName    string
	EssentialTplName string
	RootFolder       string
	CoreZoneLabel    string

	WorkerConcurrency int
}

// CoreZone maps the zone label onto the numeric zone the metadata service
// stores on items.
func (c Config) CoreZone() int {
	if c.CoreZoneLabel == "greenroom" {
		return 0
	}
	return 1
}

func LoadConfig(log *logger.Logger) Config {
	downloadExpiryMinutes := utils.GetEnvAsInt("DOWNLOAD_TOKEN_EXPIRE_AT", 5, log)
	return Config{
		Port:    utils.GetEnv("PORT", "5081", log),
		LogMode: utils.GetEnv("LOG_MODE", "development", log),

		MetadataServiceURL: utils.GetEnv("METADATA_SERVICE", "http://metadata.utility:5066", log),
		ProjectServiceURL:  utils.GetEnv("PROJECT_SERVICE", "http://project.utility:5064", log),
		QueueServiceURL:    utils.GetEnv("QUEUE_SERVICE", "http://queue.greenroom:6060", log),
		LockServiceURL:     utils.GetEnv("ROOT_PATH", "http://dataops.utility:5063", log),

		KafkaURL: utils.GetEnv("KAFKA_URL", "kafka.utility:9092", log),

		RedisHost:     utils.GetEnv("REDIS_HOST", "redis.utility", log),
		RedisPort:     utils.GetEnv("REDIS_PORT", "6379", log),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       utils.GetEnvAsInt("REDIS_DB", 0, log),

		DownloadKey:    utils.GetEnv("DOWNLOAD_KEY", "", log),
		DownloadExpiry: time.Duration(downloadExpiryMinutes) * time.Minute,
		MaxPreviewSize: int64(utils.GetEnvAsInt("MAX_PREVIEW_SIZE", 500_000, log)),

		EssentialName:    utils.GetEnv("ESSENTIAL_NAME", "essential.schema.json", log),
		EssentialTplName: utils.GetEnv("ESSENTIAL_TPL_NAME", "Essential", log),
		RootFolder:       utils.GetEnv("DATASET_FILE_FOLDER", "data", log),
		CoreZoneLabel:    utils.GetEnv("CORE_ZONE_LABEL", "core", log),

		WorkerConcurrency: utils.GetEnvAsInt("WORKER_CONCURRENCY", 8, log),
	}
}
