package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that carry secrets. Secrets are never written to the config file.
const (
	EnvStorageAccessKey = "FIELDSYNC_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey = "FIELDSYNC_STORAGE_SECRET_KEY"
	EnvRemoteDSN        = "FIELDSYNC_REMOTE_DSN"
	EnvPassphrase       = "FIELDSYNC_PASSPHRASE"
)

// Config represents the main configuration for fieldsync.
type Config struct {
	DeviceID     string             `toml:"device_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Database     DatabaseConfig     `toml:"database"`
	Content      ContentConfig      `toml:"content"`
	Storage      StorageConfig      `toml:"storage"`
	Remote       RemoteConfig       `toml:"remote"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Capture      CaptureConfig      `toml:"capture"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Sync         SyncConfig         `toml:"sync"`
	Server       ServerConfig       `toml:"server"`
	Import       ImportConfig       `toml:"import"`
}

// DatabaseConfig represents configuration for the local metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ContentConfig represents configuration for the local content store.
type ContentConfig struct {
	Type    string `toml:"type"`          // "memory" or "filesystem"
	Dir     string `toml:"dir,omitempty"` // only used for type=filesystem
	MaxSize int64  `toml:"max_size"`      // max total size in bytes; 0 means unlimited
}

// StorageConfig represents configuration for remote object storage.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "minio"

	// s3 and minio
	Bucket       string `toml:"bucket,omitempty"`
	Prefix       string `toml:"prefix,omitempty"`
	Region       string `toml:"region,omitempty"`
	Endpoint     string `toml:"endpoint,omitempty"`
	PublicURL    string `toml:"public_url,omitempty"` // base URL returned for uploaded objects
	UseSSL       bool   `toml:"use_ssl,omitempty"`
	UsePathStyle bool   `toml:"use_path_style,omitempty"`

	// filesystem
	Root string `toml:"root,omitempty"`

	AccessKey string `toml:"-"`
	SecretKey string `toml:"-"`
}

// RemoteConfig represents configuration for the remote database.
type RemoteConfig struct {
	Type  string `toml:"type"`           // "memory", "postgres" or "sqlite"
	Table string `toml:"table"`          // table work orders are written to
	Path  string `toml:"path,omitempty"` // only used for type=sqlite
	DSN   string `toml:"-"`
}

// EncryptionConfig holds paths to the age key pair used for at-rest encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// CaptureConfig controls how captured images are stored.
type CaptureConfig struct {
	Compress     bool `toml:"compress"`
	MaxDimension int  `toml:"max_dimension"`
	JPEGQuality  int  `toml:"jpeg_quality"`
}

// ConnectivityConfig controls how the device decides it is online.
type ConnectivityConfig struct {
	Type     string   `toml:"type"` // "probe", "always" or "never"
	ProbeURL string   `toml:"probe_url,omitempty"`
	Timeout  Duration `toml:"timeout"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	UploadConcurrency int      `toml:"upload_concurrency"`
	Interval          Duration `toml:"interval"`
	PollInterval      Duration `toml:"poll_interval"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	StaleAfter        Duration `toml:"stale_after"`
}

// ServerConfig holds settings for `fieldsync serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ImportConfig holds settings for importing captures from a directory.
type ImportConfig struct {
	Ignore []string `toml:"ignore"`
}

// Duration is a time.Duration written as a string ("30s", "10m") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Content: ContentConfig{
			Type:    "filesystem",
			Dir:     filepath.Join(baseDir, "content"),
			MaxSize: 2 << 30,
		},
		Storage: StorageConfig{Type: "filesystem", Root: filepath.Join(baseDir, "remote")},
		Remote:  RemoteConfig{Type: "sqlite", Table: "work_orders", Path: filepath.Join(baseDir, "remote", "work_orders.db")},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fieldsync.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fieldsync.key"),
		},
		Capture: CaptureConfig{Compress: true, MaxDimension: 1920, JPEGQuality: 70},
		Connectivity: ConnectivityConfig{
			Type:     "probe",
			ProbeURL: "https://clients3.google.com/generate_204",
			Timeout:  Duration{5 * time.Second},
		},
		Sync: SyncConfig{
			UploadConcurrency: 3,
			Interval:          Duration{5 * time.Minute},
			PollInterval:      Duration{5 * time.Second},
			ReconnectDelay:    Duration{2 * time.Second},
			StaleAfter:        Duration{10 * time.Minute},
		},
		Server: ServerConfig{Addr: "127.0.0.1:8765"},
		Import: ImportConfig{Ignore: []string{".*", "*.tmp"}},
	}
}

// ApplyEnv fills secrets from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvStorageAccessKey); v != "" {
		c.Storage.AccessKey = v
	}
	if v := getenv(EnvStorageSecretKey); v != "" {
		c.Storage.SecretKey = v
	}
	if v := getenv(EnvRemoteDSN); v != "" {
		c.Remote.DSN = v
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
