package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Classroom ClassroomConfig `yaml:"classroom"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig configures the ONNX Runtime-backed capability adapters:
// object detector, face embedder, and pose/gaze model.
type VisionConfig struct {
	ModelsDir            string  `yaml:"models_dir"`
	DetectionThreshold   float64 `yaml:"detection_threshold"`
	RecognitionThreshold float64 `yaml:"recognition_threshold"`
	MinFaceSize          int     `yaml:"min_face_size"`
	IntraOpThreads       int     `yaml:"intra_op_threads"`
	InterOpThreads       int     `yaml:"inter_op_threads"`
}

// ClassroomConfig configures the perception pipeline orchestrator and
// the domain logic it drives (tracker, identity resolver, pose/gaze
// classification, event synthesizer), mapped 1:1 onto the
// corresponding classroom.Config fields at wiring time.
type ClassroomConfig struct {
	TargetFPS float64 `yaml:"target_fps"`

	TrackThresh       float64       `yaml:"track_thresh"`
	HighMatchThresh   float64       `yaml:"high_match_thresh"`
	LowMatchThresh    float64       `yaml:"low_match_thresh"`
	ReviveMatchThresh float64       `yaml:"revive_match_thresh"`
	TrackBuffer       int           `yaml:"track_buffer"`
	MinBoxArea        float64       `yaml:"min_box_area"`

	RecognitionInterval time.Duration `yaml:"recognition_interval"`

	EARThreshold   float64 `yaml:"ear_threshold"`
	YawThresholdDeg   float64 `yaml:"yaw_threshold_deg"`
	PitchThresholdDeg float64 `yaml:"pitch_threshold_deg"`

	AttentionHighScore   float64 `yaml:"attention_high_score"`
	PhoneDetectionFrames int     `yaml:"phone_detection_frames"`
	PostureGoodThreshold float64 `yaml:"posture_good_threshold"`

	PhoneAssociationMaxDistance float64 `yaml:"phone_association_max_distance"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.RecognitionThreshold == 0 {
		cfg.Vision.RecognitionThreshold = 0.4
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 40
	}

	if cfg.Classroom.TargetFPS == 0 {
		cfg.Classroom.TargetFPS = 8
	}
	if cfg.Classroom.TrackThresh == 0 {
		cfg.Classroom.TrackThresh = 0.5
	}
	if cfg.Classroom.HighMatchThresh == 0 {
		cfg.Classroom.HighMatchThresh = 0.8
	}
	if cfg.Classroom.LowMatchThresh == 0 {
		cfg.Classroom.LowMatchThresh = 0.5
	}
	if cfg.Classroom.ReviveMatchThresh == 0 {
		cfg.Classroom.ReviveMatchThresh = 0.7
	}
	if cfg.Classroom.TrackBuffer == 0 {
		cfg.Classroom.TrackBuffer = 30
	}
	if cfg.Classroom.MinBoxArea == 0 {
		cfg.Classroom.MinBoxArea = 100
	}
	if cfg.Classroom.RecognitionInterval == 0 {
		cfg.Classroom.RecognitionInterval = 2 * time.Second
	}
	if cfg.Classroom.EARThreshold == 0 {
		cfg.Classroom.EARThreshold = 0.2
	}
	if cfg.Classroom.YawThresholdDeg == 0 {
		cfg.Classroom.YawThresholdDeg = 30
	}
	if cfg.Classroom.PitchThresholdDeg == 0 {
		cfg.Classroom.PitchThresholdDeg = 20
	}
	if cfg.Classroom.AttentionHighScore == 0 {
		cfg.Classroom.AttentionHighScore = 0.7
	}
	if cfg.Classroom.PhoneDetectionFrames == 0 {
		cfg.Classroom.PhoneDetectionFrames = 3
	}
	if cfg.Classroom.PostureGoodThreshold == 0 {
		cfg.Classroom.PostureGoodThreshold = 0.5
	}
	if cfg.Classroom.PhoneAssociationMaxDistance == 0 {
		cfg.Classroom.PhoneAssociationMaxDistance = 150
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLASSROOM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLASSROOM_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CLASSROOM_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CLASSROOM_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CLASSROOM_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CLASSROOM_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CLASSROOM_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CLASSROOM_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CLASSROOM_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CLASSROOM_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CLASSROOM_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CLASSROOM_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CLASSROOM_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("CLASSROOM_TARGET_FPS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Classroom.TargetFPS = n
		}
	}
	if v := os.Getenv("CLASSROOM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
