package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Install modes.
const (
	// ModeRelease installs from the release channel only.
	ModeRelease = "release"
	// ModeLocal allows a trusted local source tree to provide the app tree, manifest and data.
	ModeLocal = "local"
)

// RuntimePython is the interpreter name inside a release runtime environment.
const RuntimePython = "python"

// Supervisor backends.
const (
	ManagerSystemd = "systemd"
	ManagerNone    = "none"
)

// TagLatest selects the newest release of the channel.
const TagLatest = "latest"

// Config holds every setting of the release manager.
type Config struct {
	// Root is the application root holding releases, pointers and the cache.
	Root string `yaml:"root" mapstructure:"root"`
	// LogLevel is the minimum zap level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	Channel  ChannelConfig  `yaml:"channel" mapstructure:"channel"`
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`
	Assets   AssetsConfig   `yaml:"assets" mapstructure:"assets"`
	Install  InstallConfig  `yaml:"install" mapstructure:"install"`
	Layout   LayoutConfig   `yaml:"layout" mapstructure:"layout"`
	Runtime  RuntimeConfig  `yaml:"runtime" mapstructure:"runtime"`
	Service  ServiceConfig  `yaml:"service" mapstructure:"service"`
	Health   HealthConfig   `yaml:"health" mapstructure:"health"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
}

// ChannelConfig identifies the release channel.
type ChannelConfig struct {
	// BaseURL is the forge the repository lives on.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Repo is the repository identity in owner/name form.
	Repo string `yaml:"repo" mapstructure:"repo"`
	// Tag is a release tag or "latest".
	Tag string `yaml:"tag" mapstructure:"tag"`
}

// ManifestConfig points at the checksum manifest.
type ManifestConfig struct {
	// Source is an explicit manifest path or http(s) URL.
	Source string `yaml:"source" mapstructure:"source"`
	// Name is the manifest asset name in the channel and in the source tree.
	Name string `yaml:"name" mapstructure:"name"`
}

// AssetsConfig names the assets that make up a release.
type AssetsConfig struct {
	// BaseURL overrides where assets are downloaded from.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// AppArchive is the application archive asset.
	AppArchive string `yaml:"app_archive" mapstructure:"app_archive"`
	// ExtensionArchive is the optional desktop extension archive asset.
	ExtensionArchive string `yaml:"extension_archive" mapstructure:"extension_archive"`
	// DataFiles are the offline data assets installed into <release>/data.
	DataFiles []string `yaml:"data_files" mapstructure:"data_files"`
	// ModelArchive is the optional offline model archive, unpacked into <release>/data/<model_dir>.
	ModelArchive string `yaml:"model_archive" mapstructure:"model_archive"`
	// ModelDir is the data subdirectory the model archive is unpacked into.
	ModelDir string `yaml:"model_dir" mapstructure:"model_dir"`
	// ModelMarker is a file, relative to ModelDir, that must exist after unpacking.
	ModelMarker string `yaml:"model_marker" mapstructure:"model_marker"`
	// ForceRemote disables every local or trusted asset source.
	ForceRemote bool `yaml:"force_remote" mapstructure:"force_remote"`
}

// InstallConfig selects where the application tree comes from.
type InstallConfig struct {
	// Mode is ModeRelease or ModeLocal.
	Mode string `yaml:"mode" mapstructure:"mode"`
	// SourceDir is the trusted local source tree used in ModeLocal.
	SourceDir string `yaml:"source_dir" mapstructure:"source_dir"`
	// DataDirs are searched, relative to SourceDir, for local data assets.
	DataDirs []string `yaml:"data_dirs" mapstructure:"data_dirs"`
	// Exclude lists top-level names skipped when copying SourceDir.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// LayoutConfig describes what a valid application tree looks like.
type LayoutConfig struct {
	// RequiredDirs must all be present at the top of the application tree.
	RequiredDirs []string `yaml:"required_dirs" mapstructure:"required_dirs"`
}

// RuntimeConfig controls the per-release runtime environment.
type RuntimeConfig struct {
	// Enabled turns environment provisioning on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Interpreter creates the environment.
	Interpreter string `yaml:"interpreter" mapstructure:"interpreter"`
	// Requirements is a requirements file relative to the app tree.
	Requirements string `yaml:"requirements" mapstructure:"requirements"`
	// SmokeImport is the native dependency imported as a capability check.
	SmokeImport string `yaml:"smoke_import" mapstructure:"smoke_import"`
	// Timeout bounds every provisioning command.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServiceConfig describes the supervised backend.
type ServiceConfig struct {
	// Manager is ManagerSystemd or ManagerNone.
	Manager string `yaml:"manager" mapstructure:"manager"`
	// Unit is the systemd user unit name.
	Unit string `yaml:"unit" mapstructure:"unit"`
	// UnitDir is where the unit file is written.
	UnitDir string `yaml:"unit_dir" mapstructure:"unit_dir"`
	// BusName is the D-Bus name used for activation.
	BusName string `yaml:"bus_name" mapstructure:"bus_name"`
	// DBusServiceDir is where the D-Bus activation file is written.
	DBusServiceDir string `yaml:"dbus_service_dir" mapstructure:"dbus_service_dir"`
	// Module is the python module started by the unit.
	Module string `yaml:"module" mapstructure:"module"`
	// ProcessName is the executable name of the running backend.
	ProcessName string `yaml:"process_name" mapstructure:"process_name"`
	// Timeout bounds every supervisor command.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// HealthConfig controls the post-activation probe.
type HealthConfig struct {
	// Enabled turns the probe on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// AutoRollback re-activates the previous release when the probe fails.
	AutoRollback bool `yaml:"auto_rollback" mapstructure:"auto_rollback"`
	// Socket is the unix socket of the backend IPC endpoint.
	Socket string `yaml:"socket" mapstructure:"socket"`
	// ReadyTimeout bounds the readiness poll.
	ReadyTimeout time.Duration `yaml:"ready_timeout" mapstructure:"ready_timeout"`
	// PollInterval is the sleep between readiness attempts.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// CallTimeout bounds each probe call.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	// Samples are the inputs of the primary-function calls.
	Samples []string `yaml:"samples" mapstructure:"samples"`
}

// DownloadConfig bounds the HTTP transport.
type DownloadConfig struct {
	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Retries is the number of attempts per asset.
	Retries int `yaml:"retries" mapstructure:"retries"`
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

const (
	// DefaultConfigFilename is the configuration filename looked up in the user config dir.
	DefaultConfigFilename = "translator-release.yaml"

	// DefaultFilePermissions is the permission of saved config files.
	DefaultFilePermissions = 0o600

	// DefaultManifestName is the manifest asset name.
	DefaultManifestName = "SHA256SUMS"

	defaultBaseURL       = "https://github.com"
	defaultRepo          = "igor3204/selection_translator_anki"
	defaultAppArchive    = "translator-app.tar.gz"
	defaultModelDir      = "offline_assets"
	defaultModelMarker   = "ct2/opus_mt/en-ru/model.bin"
	defaultUnit          = "translator.service"
	defaultBusName       = "com.translator.desktop"
	defaultModule        = "desktop_app.main"
	defaultInterpreter   = "python3"
	defaultRequirements  = "requirements.txt"
	defaultSmokeImport   = "ctranslate2"
	defaultRuntimeTime   = 10 * time.Minute
	defaultServiceTime   = 30 * time.Second
	defaultReadyTimeout  = 30 * time.Second
	defaultPollInterval  = 500 * time.Millisecond
	defaultCallTimeout   = 5 * time.Second
	defaultDownloadTime  = 5 * time.Minute
	defaultRetries       = 3
	defaultBackoff       = 2 * time.Second
	defaultLogLevel      = "info"
	defaultSocketDirName = "translator"
	defaultSocketName    = "ipc.sock"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownMode is returned for an install mode other than release/local.
	errUnknownMode = errors.New("unknown install mode")
	// errSourceDirRequired is returned when local mode has no source tree.
	errSourceDirRequired = errors.New("install.source_dir must be set in local mode")
	// errUnknownManager is returned for an unsupported supervisor backend.
	errUnknownManager = errors.New("unknown service manager")
	// errTooFewSamples is returned when the probe has fewer than two distinct inputs.
	errTooFewSamples = errors.New("health.samples needs two distinct inputs")
	// errRequiredDirs is returned when no application layout is declared.
	errRequiredDirs = errors.New("layout.required_dirs must not be empty")
	// errModelDir is returned when assets.model_dir is not a single path element.
	errModelDir = errors.New("assets.model_dir must be a single directory name")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	cfg.Runtime.Enabled = true
	cfg.Health.Enabled = true
	applyDefaults(cfg)

	return cfg
}

// Validate checks the settings and fills in defaults for empty fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if err := absolutePaths(cfg); err != nil {
		return err
	}

	switch cfg.Install.Mode {
	case ModeRelease:
	case ModeLocal:
		if cfg.Install.SourceDir == "" {
			return errSourceDirRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownMode, cfg.Install.Mode)
	}

	switch cfg.Service.Manager {
	case ManagerSystemd, ManagerNone:
	default:
		return fmt.Errorf("%w: %q", errUnknownManager, cfg.Service.Manager)
	}

	for _, raw := range []string{cfg.Channel.BaseURL, cfg.Assets.BaseURL} {
		if raw == "" {
			continue
		}

		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid base URL %q: %w", raw, err)
		}
	}

	if len(cfg.Layout.RequiredDirs) == 0 {
		return errRequiredDirs
	}

	if dir := cfg.Assets.ModelDir; dir != filepath.Base(dir) || dir == ".." {
		return fmt.Errorf("%w: %q", errModelDir, dir)
	}

	if cfg.Health.Enabled && (len(cfg.Health.Samples) < 2 || cfg.Health.Samples[0] == cfg.Health.Samples[1]) {
		return errTooFewSamples
	}

	return nil
}

// IsRemoteSource reports whether source is an http(s) URL.
func IsRemoteSource(source string) bool {
	lower := strings.ToLower(source)

	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// LocalAllowed reports whether a trusted local source tree may be used.
func (c *Config) LocalAllowed() bool {
	return c.Install.Mode == ModeLocal && !c.Assets.ForceRemote && c.Install.SourceDir != ""
}

// ResolvedTag returns the configured tag, "latest" when unset.
func (c *Config) ResolvedTag() string {
	if c.Channel.Tag == "" {
		return TagLatest
	}

	return c.Channel.Tag
}

//nolint:cyclop // A flat list of defaults reads better than a table.
func applyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = defaultRoot()
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.Channel.BaseURL == "" {
		cfg.Channel.BaseURL = defaultBaseURL
	}

	if cfg.Channel.Repo == "" && cfg.Manifest.Source == "" {
		cfg.Channel.Repo = defaultRepo
	}

	if cfg.Manifest.Name == "" {
		cfg.Manifest.Name = DefaultManifestName
	}

	if cfg.Assets.AppArchive == "" {
		cfg.Assets.AppArchive = defaultAppArchive
	}

	if cfg.Assets.ModelDir == "" {
		cfg.Assets.ModelDir = defaultModelDir
	}

	if cfg.Assets.ModelMarker == "" {
		cfg.Assets.ModelMarker = defaultModelMarker
	}

	if cfg.Install.Mode == "" {
		cfg.Install.Mode = ModeRelease
	}

	if len(cfg.Install.Exclude) == 0 {
		cfg.Install.Exclude = []string{".git", ".venv", "__pycache__", "node_modules"}
	}

	if len(cfg.Install.DataDirs) == 0 {
		cfg.Install.DataDirs = []string{".", "offline_language_base", "offline_assets"}
	}

	if len(cfg.Layout.RequiredDirs) == 0 {
		cfg.Layout.RequiredDirs = []string{"desktop_app", "translate_logic"}
	}

	applyRuntimeDefaults(&cfg.Runtime)
	applyServiceDefaults(&cfg.Service)

	if cfg.Service.ProcessName == "" {
		cfg.Service.ProcessName = backendProcessName(cfg.Runtime)
	}
	applyHealthDefaults(&cfg.Health)

	if cfg.Download.Timeout <= 0 {
		cfg.Download.Timeout = defaultDownloadTime
	}

	if cfg.Download.Retries <= 0 {
		cfg.Download.Retries = defaultRetries
	}

	if cfg.Download.Backoff <= 0 {
		cfg.Download.Backoff = defaultBackoff
	}
}

func applyRuntimeDefaults(runtime *RuntimeConfig) {
	if runtime.Interpreter == "" {
		runtime.Interpreter = defaultInterpreter
	}

	if runtime.Requirements == "" {
		runtime.Requirements = defaultRequirements
	}

	if runtime.SmokeImport == "" {
		runtime.SmokeImport = defaultSmokeImport
	}

	if runtime.Timeout <= 0 {
		runtime.Timeout = defaultRuntimeTime
	}
}

func applyServiceDefaults(service *ServiceConfig) {
	if service.Manager == "" {
		service.Manager = ManagerSystemd
	}

	if service.Unit == "" {
		service.Unit = defaultUnit
	}

	if service.UnitDir == "" {
		service.UnitDir = filepath.Join(userConfigDir(), "systemd", "user")
	}

	if service.BusName == "" {
		service.BusName = defaultBusName
	}

	if service.DBusServiceDir == "" {
		service.DBusServiceDir = filepath.Join(userDataDir(), "dbus-1", "services")
	}

	if service.Module == "" {
		service.Module = defaultModule
	}

	if service.Timeout <= 0 {
		service.Timeout = defaultServiceTime
	}
}

// absolutePaths anchors filesystem settings to the working directory, so
// generated descriptors and pointers never depend on where the CLI ran.
func absolutePaths(cfg *Config) error {
	for _, path := range []*string{
		&cfg.Root,
		&cfg.Install.SourceDir,
		&cfg.Service.UnitDir,
		&cfg.Service.DBusServiceDir,
		&cfg.Health.Socket,
	} {
		if *path == "" || filepath.IsAbs(*path) {
			continue
		}

		absolute, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", *path, err)
		}

		*path = absolute
	}

	return nil
}

// backendProcessName is the process name the kernel reports for the
// interpreter the service unit starts.
func backendProcessName(runtime RuntimeConfig) string {
	if runtime.Enabled {
		return RuntimePython
	}

	return filepath.Base(runtime.Interpreter)
}

func applyHealthDefaults(health *HealthConfig) {
	if health.Socket == "" {
		health.Socket = defaultSocket()
	}

	if health.ReadyTimeout <= 0 {
		health.ReadyTimeout = defaultReadyTimeout
	}

	if health.PollInterval <= 0 {
		health.PollInterval = defaultPollInterval
	}

	if health.CallTimeout <= 0 {
		health.CallTimeout = defaultCallTimeout
	}

	if len(health.Samples) == 0 {
		health.Samples = []string{"hello", "good morning"}
	}
}

func defaultRoot() string {
	return filepath.Join(userDataDir(), "translator")
}

func defaultSocket() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}

	return filepath.Join(runtimeDir, defaultSocketDirName, defaultSocketName)
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "translator-data")
	}

	return filepath.Join(home, ".local", "share")
}

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "translator-config")
	}

	return dir
}
