package telemetry

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultServiceName names the resource when no service name is configured.
const DefaultServiceName = "wirebench"

// Config controls span export. An empty Endpoint disables tracing.
type Config struct {
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	ServiceName string
	DialTimeout time.Duration
}

// Enabled reports whether an exporter endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) serviceName() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return DefaultServiceName
}

// ConfigFromEnv reads the standard OTLP environment variables.
func ConfigFromEnv() Config {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) Config {
	var cfg Config
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		cfg.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_INSECURE"); ok {
		cfg.Insecure, _ = strconv.ParseBool(strings.TrimSpace(v))
	}
	if v, ok := lookup("OTEL_SERVICE_NAME"); ok {
		cfg.ServiceName = strings.TrimSpace(v)
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_HEADERS"); ok {
		cfg.Headers = parseHeaders(v)
	}
	return cfg
}

// parseHeaders accepts "k1=v1,k2=v2".
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
