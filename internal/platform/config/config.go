package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hls-radio/internal/radio"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the server.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Stream   radio.StreamSettings   `yaml:"stream"`
	Supplier radio.SupplierSettings `yaml:"supplier"`

	SlideInterval time.Duration `yaml:"slide_interval"`
	Whitelist     []string      `yaml:"whitelist"`

	FillerAudioPath string `yaml:"filler_audio_path"`
	LibraryRoot     string `yaml:"library_root"`
	FFmpegPath      string `yaml:"ffmpeg_path"`
	SegmentWorkDir  string `yaml:"segment_work_dir"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SongCacheTTL  time.Duration `yaml:"song_cache_ttl"`

	S3 S3Config `yaml:"s3"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
}

// S3Config selects the object store songs are downloaded from.
// An empty Bucket means songs are read from LibraryRoot.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from environment variables, falling back to defaults.
func FromEnv() Config {
	stream := radio.DefaultStreamSettings()
	stream.SegmentDuration = time.Duration(GetEnvInt("HLS_SEGMENT_DURATION", int(stream.SegmentDuration/time.Second))) * time.Second
	stream.MaxVisibleSegments = GetEnvInt("HLS_MAX_VISIBLE_SEGMENTS", stream.MaxVisibleSegments)
	stream.Bitrates = GetEnvInt64List("HLS_BITRATES", stream.Bitrates)
	stream.DripPerTick = GetEnvInt("HLS_DRIP_PER_TICK", stream.DripPerTick)
	stream.RefillThreshold = GetEnvInt("HLS_PENDING_REFILL", stream.RefillThreshold)

	supplier := radio.DefaultSupplierSettings()
	supplier.RegularCapacity = GetEnvInt("SUPPLIER_REGULAR_CAPACITY", supplier.RegularCapacity)
	supplier.PriorityThreshold = GetEnvInt("SUPPLIER_PRIORITY_THRESHOLD", supplier.PriorityThreshold)
	supplier.TriggerDepth = GetEnvInt("SUPPLIER_TRIGGER_DEPTH", supplier.TriggerDepth)
	supplier.MaintenanceInterval = GetEnvDuration("SUPPLIER_MAINTENANCE_INTERVAL", supplier.MaintenanceInterval)
	supplier.MaintenanceDelay = GetEnvDuration("SUPPLIER_MAINTENANCE_DELAY", supplier.MaintenanceDelay)
	supplier.StarvationCooldown = GetEnvDuration("SUPPLIER_STARVATION_COOLDOWN", supplier.StarvationCooldown)
	supplier.FillerWait = GetEnvDuration("SUPPLIER_FILLER_WAIT", supplier.FillerWait)

	return Config{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		Stream:   stream,
		Supplier: supplier,

		SlideInterval: GetEnvDuration("HLS_SLIDE_INTERVAL", time.Second),
		Whitelist:     GetEnvList("STATION_WHITELIST", nil),

		FillerAudioPath: GetEnv("FILLER_AUDIO_PATH", ""),
		LibraryRoot:     GetEnv("LIBRARY_ROOT", "./library"),
		FFmpegPath:      GetEnv("FFMPEG_PATH", "ffmpeg"),
		SegmentWorkDir:  GetEnv("SEGMENT_WORK_DIR", os.TempDir()),

		RedisAddr:     GetEnv("REDIS_ADDR", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
		SongCacheTTL:  GetEnvDuration("SONG_CACHE_TTL", 5*time.Minute),

		S3: S3Config{
			Bucket:          GetEnv("S3_BUCKET", ""),
			Region:          GetEnv("S3_REGION", "us-east-1"),
			Endpoint:        GetEnv("S3_ENDPOINT", ""),
			AccessKeyID:     GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    GetEnvBool("S3_USE_PATH_STYLE", false),
		},

		NATSURL:           GetEnv("NATS_URL", ""),
		NATSSubjectPrefix: GetEnv("NATS_SUBJECT_PREFIX", "radio"),
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the stream and supplier settings and the server basics.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is empty", radio.ErrConfig)
	}
	if c.SlideInterval <= 0 {
		return fmt.Errorf("%w: slide interval must be positive", radio.ErrConfig)
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	return c.Supplier.Validate()
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool parses key with strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration accepts Go duration strings ("20s") or a bare number of seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// GetEnvList splits a comma-separated variable, dropping empty items.
func GetEnvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvInt64List parses a comma-separated list of integers. Any invalid item
// makes it return fallback.
func GetEnvInt64List(key string, fallback []int64) []int64 {
	items := GetEnvList(key, nil)
	if len(items) == 0 {
		return fallback
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
