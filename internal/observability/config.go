package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/bazaar/internal/config"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config is the telemetry view of the service settings. OTLP export is off
// unless OTEL_ENABLED is set; Prometheus collectors are always registered but
// can be kept off /metrics with PROMETHEUS_ENABLED=false.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	TracesProtocol       string
	MetricsProtocol      string
	OtelSamplingRatio    float64

	PrometheusEnabled bool
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "bazaar"
	}

	protocol := normalizeProtocol(lookup("OTEL_EXPORTER_OTLP_PROTOCOL", ProtocolGRPC))
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(lookup("DEPLOYMENT_ENV", cfg.Environment)),
		Version:              strings.TrimSpace(lookup("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT", "json")),
		OtelEnabled:          lookupBool("OTEL_ENABLED", false),
		OtelExporterEndpoint: lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		TracesProtocol:       normalizeProtocol(lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)),
		MetricsProtocol:      normalizeProtocol(lookup("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL", protocol)),
		OtelSamplingRatio:    clampRatio(lookupFloat("OTEL_SAMPLING_RATIO", 0.1)),
		PrometheusEnabled:    lookupBool("PROMETHEUS_ENABLED", true),
	}
}

// Debug turns on verbose request logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// normalizeProtocol maps the OTLP protocol names onto the two exporters we
// build. http/protobuf and http/json both use the HTTP exporter.
func normalizeProtocol(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(value, ProtocolHTTP) {
		return ProtocolHTTP
	}
	return ProtocolGRPC
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func lookup(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func lookupBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(lookup(key, ""))
	if err != nil {
		return def
	}
	return parsed
}

func lookupFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(lookup(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}
