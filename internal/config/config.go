package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "ADAS"
	defaultAPIPort = 8000
)

// Config stores runtime configuration for the dashboard binaries.
type Config struct {
	APIBaseURL       string
	DemoMode         bool
	ListenAddr       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	RequestTimeout   time.Duration
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	PollInterval     time.Duration
	AlertLimit       int
	CaptureDir       string
	LocalCamera      bool
	CameraWidth      int
	CameraHeight     int
	VoiceEnabled     bool
	LogLevel         string
	LogFormat        string
	PageTitle        string
	PageSubtitle     string
}

// Load reads ADAS_* environment variables (and the optional ADAS_CONFIG_FILE)
// and validates the result.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv("ADAS_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read ADAS_CONFIG_FILE: %w", err)
		}
	}

	cfg := Config{
		DemoMode:         boolValue(v, "demo", false),
		ListenAddr:       stringValue(v, "listen_address", ":8080"),
		HTTPReadTimeout:  durationValue(v, "read_timeout", 10*time.Second),
		HTTPWriteTimeout: durationValue(v, "write_timeout", 10*time.Second),
		RequestTimeout:   durationValue(v, "request_timeout", 15*time.Second),
		ProbeInterval:    durationValue(v, "probe_interval", 5*time.Second),
		ProbeTimeout:     durationValue(v, "probe_timeout", 3*time.Second),
		PollInterval:     durationValue(v, "poll_interval", 2*time.Second),
		AlertLimit:       intValue(v, "alert_limit", 10),
		CaptureDir:       stringValue(v, "capture_dir", "captures"),
		LocalCamera:      boolValue(v, "local_camera", true),
		CameraWidth:      intValue(v, "camera_width", 640),
		CameraHeight:     intValue(v, "camera_height", 480),
		VoiceEnabled:     boolValue(v, "voice_enabled", true),
		LogLevel:         stringValue(v, "log_level", "info"),
		LogFormat:        stringValue(v, "log_format", "json"),
		PageTitle:        stringValue(v, "page_title", "ADAS Control Center"),
		PageSubtitle:     stringValue(v, "page_subtitle", "Advanced Driver Assistance System"),
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("ADAS_POLL_INTERVAL must be > 0")
	}
	if cfg.ProbeInterval <= 0 {
		return Config{}, fmt.Errorf("ADAS_PROBE_INTERVAL must be > 0")
	}
	if cfg.ProbeTimeout <= 0 {
		return Config{}, fmt.Errorf("ADAS_PROBE_TIMEOUT must be > 0")
	}
	if cfg.AlertLimit <= 0 {
		return Config{}, fmt.Errorf("ADAS_ALERT_LIMIT must be > 0")
	}

	pageHost := stringValue(v, "public_host", "")
	if pageHost == "" {
		pageHost = hostOf(cfg.ListenAddr)
	}
	baseURL, err := ResolveBaseURL(stringValue(v, "api_url", ""), pageHost, intValue(v, "api_port", defaultAPIPort))
	if err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = baseURL

	return cfg, nil
}

// ResolveBaseURL picks the backend URL: an explicit override first, then the
// page's own hostname on the backend port, then localhost.
func ResolveBaseURL(override, pageHost string, port int) (string, error) {
	if port <= 0 {
		port = defaultAPIPort
	}

	if override = strings.TrimSpace(override); override != "" {
		parsedURL, err := url.Parse(override)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			return "", fmt.Errorf("ADAS_API_URL must be a valid absolute URL")
		}
		return strings.TrimRight(parsedURL.String(), "/"), nil
	}

	host := hostOf(pageHost)
	if !isLocalHost(host) {
		return "http://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
	}

	return "http://" + net.JoinHostPort("localhost", strconv.Itoa(port)), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", defaultAPIPort)
	v.SetDefault("demo", false)
	v.SetDefault("local_camera", true)
	v.SetDefault("voice_enabled", true)
}

func hostOf(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return host
	}
	return strings.Trim(value, "[]")
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "", "localhost", "127.0.0.1", "0.0.0.0", "::", "::1":
		return true
	}
	return false
}

func durationValue(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err == nil {
		return parsed
	}

	// Accept plain integers as seconds for convenience (e.g. "2" => 2s).
	if seconds, parseErr := strconv.Atoi(value); parseErr == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	return fallback
}

func boolValue(v *viper.Viper, key string, fallback bool) bool {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func intValue(v *viper.Viper, key string, fallback int) int {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func stringValue(v *viper.Viper, key, fallback string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}

	return value
}
