package cmdfactory

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/elijahthis/crawl-accessory/internal/feed"
	"github.com/elijahthis/crawl-accessory/internal/pipeline"
	"github.com/elijahthis/crawl-accessory/internal/proxy"
)

// Config is read from an optional YAML file, then the environment, then
// command line flags. Keys keep the names of the settings they replace.
type Config struct {
	// Proxy
	ProxyEnabled      bool       `yaml:"PROXY_ENABLED" envconfig:"PROXY_ENABLED"`
	ProxyHost         string     `yaml:"PROXY_HOST" envconfig:"PROXY_HOST"`
	ProxyCache        string     `yaml:"PROXY_CACHE" envconfig:"PROXY_CACHE"`
	ProxyTTL          int        `yaml:"PROXY_TTL" envconfig:"PROXY_TTL"`
	ChangeProxyStatus StatusList `yaml:"CHANGE_PROXY_STATUS" envconfig:"CHANGE_PROXY_STATUS"`
	ProxyCacheKey     string     `yaml:"PROXY_CACHE_KEY" envconfig:"PROXY_CACHE_KEY"`
	ProxyAPI          string     `yaml:"PROXY_API" envconfig:"PROXY_API"`
	ProxyFailClosed   bool       `yaml:"PROXY_FAIL_CLOSED" envconfig:"PROXY_FAIL_CLOSED"`

	// User agents. The list is YAML only since agents contain commas.
	UserAgent         string   `yaml:"USER_AGENT" envconfig:"USER_AGENT"`
	UserAgentList     []string `yaml:"USER_AGENT_LIST" ignored:"true"`
	UserAgentListFile string   `yaml:"USER_AGENT_LIST_FILE" envconfig:"USER_AGENT_LIST_FILE"`

	// Redis item pipeline
	RedisConnectionURL string `yaml:"REDIS_CONNECTION_URL" envconfig:"REDIS_CONNECTION_URL"`
	RedisDefaultQueue  string `yaml:"REDIS_DEFAULT_QUEUE" envconfig:"REDIS_DEFAULT_QUEUE"`
	RedisMaxRetry      int    `yaml:"REDIS_MAX_RETRY" envconfig:"REDIS_MAX_RETRY"`

	// Feed export
	FeedURI        string `yaml:"FEED_URI" envconfig:"FEED_URI"`
	FeedStoreEmpty bool   `yaml:"FEED_STORE_EMPTY" envconfig:"FEED_STORE_EMPTY"`

	HuaweiAccessKeyID     string `yaml:"HUAWEI_ACCESS_KEY_ID" envconfig:"HUAWEI_ACCESS_KEY_ID"`
	HuaweiSecretAccessKey string `yaml:"HUAWEI_SECRET_ACCESS_KEY" envconfig:"HUAWEI_SECRET_ACCESS_KEY"`
	HuaweiOBSEndpoint     string `yaml:"HUAWEI_OBS_ENDPOINT" envconfig:"HUAWEI_OBS_ENDPOINT"`
	HuaweiOBSRegion       string `yaml:"HUAWEI_OBS_REGION" envconfig:"HUAWEI_OBS_REGION"`

	AliAccessKeyID     string `yaml:"ALI_ACCESS_KEY_ID" envconfig:"ALI_ACCESS_KEY_ID"`
	AliSecretAccessKey string `yaml:"ALI_SECRET_ACCESS_KEY" envconfig:"ALI_SECRET_ACCESS_KEY"`
	AliOSSEndpoint     string `yaml:"ALI_OSS_ENDPOINT" envconfig:"ALI_OSS_ENDPOINT"`
	AliOSSRegion       string `yaml:"ALI_OSS_REGION" envconfig:"ALI_OSS_REGION"`

	// MinIO / S3
	S3Endpoint string `yaml:"S3_ENDPOINT" envconfig:"S3_ENDPOINT"`
	S3Region   string `yaml:"S3_REGION" envconfig:"S3_REGION"`
	S3User     string `yaml:"S3_ACCESS_KEY_ID" envconfig:"S3_ACCESS_KEY_ID"`
	S3Password string `yaml:"S3_SECRET_ACCESS_KEY" envconfig:"S3_SECRET_ACCESS_KEY"`

	// Crawler
	SeedURLs         []string `yaml:"SEED_URLS" envconfig:"SEED_URLS"`
	FrontierRedisURL string   `yaml:"FRONTIER_REDIS_URL" envconfig:"FRONTIER_REDIS_URL"`
	WorkerCount      int      `yaml:"CONCURRENT_REQUESTS" envconfig:"CONCURRENT_REQUESTS"`
	DownloadDelayMS  int      `yaml:"DOWNLOAD_DELAY_MS" envconfig:"DOWNLOAD_DELAY_MS"`
	DownloadTimeoutS int      `yaml:"DOWNLOAD_TIMEOUT" envconfig:"DOWNLOAD_TIMEOUT"`
	RetryTimes       int      `yaml:"RETRY_TIMES" envconfig:"RETRY_TIMES"`
	RobotsTxtObey    bool     `yaml:"ROBOTSTXT_OBEY" envconfig:"ROBOTSTXT_OBEY"`
	DepthLimit       int      `yaml:"DEPTH_LIMIT" envconfig:"DEPTH_LIMIT"`
	MaxResubmits     int      `yaml:"MAX_RESUBMITS" envconfig:"MAX_RESUBMITS"`
	CrawlCrossDomain bool     `yaml:"CRAWL_CROSS_DOMAIN" envconfig:"CRAWL_CROSS_DOMAIN"`
	IdleExitSeconds  int      `yaml:"IDLE_EXIT" envconfig:"IDLE_EXIT"`
	MetricsPort      int      `yaml:"METRICS_PORT" envconfig:"METRICS_PORT"`

	// Logging
	LogLevel string `yaml:"LOG_LEVEL" envconfig:"LOG_LEVEL"`
	LogFile  string `yaml:"LOG_FILE" envconfig:"LOG_FILE"`
}

// StatusList decodes comma separated status codes from the environment,
// so both "429,503" and "429, 503" are accepted.
type StatusList []int

func (l *StatusList) Decode(value string) error {
	var codes StatusList
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid status code %q", part)
		}
		codes = append(codes, code)
	}
	*l = codes
	return nil
}

func DefaultConfig() Config {
	return Config{
		ChangeProxyStatus: append(StatusList(nil), proxy.DefaultChangeStatus...),
		RedisDefaultQueue: pipeline.DefaultQueue,
		RedisMaxRetry:     pipeline.DefaultMaxRetry,
		S3Region:          "us-east-1",
		WorkerCount:       10,
		DownloadDelayMS:   0,
		DownloadTimeoutS:  30,
		RetryTimes:        3,
		MaxResubmits:      3,
		MetricsPort:       9190,
		LogLevel:          "info",
	}
}

// LoadConfig layers the YAML file at path (if any) and the environment over
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}

	return cfg, nil
}

func (c Config) Proxy() proxy.Config {
	return proxy.Config{
		Enabled:      c.ProxyEnabled,
		Host:         c.ProxyHost,
		Cache:        c.ProxyCache,
		TTL:          c.ProxyTTL,
		ChangeStatus: []int(c.ChangeProxyStatus),
		CacheKey:     c.ProxyCacheKey,
		API:          c.ProxyAPI,
		FailClosed:   c.ProxyFailClosed,
	}
}

func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		URL:      c.RedisConnectionURL,
		Queue:    c.RedisDefaultQueue,
		MaxRetry: c.RedisMaxRetry,
	}
}

func (c Config) FeedCredentials() map[string]feed.Credentials {
	return map[string]feed.Credentials{
		feed.SchemeOBS: {
			AccessKey: c.HuaweiAccessKeyID,
			SecretKey: c.HuaweiSecretAccessKey,
			Endpoint:  c.HuaweiOBSEndpoint,
			Region:    c.HuaweiOBSRegion,
		},
		feed.SchemeOSS: {
			AccessKey: c.AliAccessKeyID,
			SecretKey: c.AliSecretAccessKey,
			Endpoint:  c.AliOSSEndpoint,
			Region:    c.AliOSSRegion,
		},
		feed.SchemeS3: {
			AccessKey: c.S3User,
			SecretKey: c.S3Password,
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			PathStyle: c.S3Endpoint != "", // MinIO
		},
	}
}
