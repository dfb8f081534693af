package output

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"sysvolscan/config"
	"sysvolscan/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includePaths     bool
	includeSensitive bool
}

// Finding fields stripped from OTEL payloads unless explicitly exported.
var (
	otelPathFields      = []string{"File", "Share", "Path", "Extra"}
	otelSensitiveFields = []string{"User", "Users", "Password", "Passwords", "Domains", "Placeholders"}
)

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("sysvolscan"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includePaths:     cfg.OtelExportPaths,
			includeSensitive: cfg.OtelExportSensitive,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload map[string]interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safe := sanitizePayload(recordType, payload, o.policy)

	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("sysvolscan.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, safe); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	record.SetBody(toLogValue(safe))
	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func runPayload(rec runRecord) map[string]interface{} {
	out := map[string]interface{}{
		"tool":    rec.Tool,
		"version": rec.Version,
	}
	putString(out, "domain", rec.Domain)
	putString(out, "hostname", rec.Hostname)
	putString(out, "address", rec.Address)
	putString(out, "start_time", rec.StartTime)
	if len(rec.Modes) > 0 {
		out["modes"] = rec.Modes
	}
	return out
}

func findingPayload(rec findingRecord) map[string]interface{} {
	fields := make(map[string]interface{}, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	out := map[string]interface{}{
		"id":     rec.ID,
		"kind":   rec.Kind,
		"fields": fields,
	}
	putString(out, "host", rec.Host)
	putString(out, "share", rec.Share)
	putString(out, "path", rec.Path)
	putString(out, "rule", rec.Rule)
	putString(out, "mime_type", rec.MimeType)
	if len(rec.Hashes) > 0 {
		out["hashes"] = rec.Hashes
	}
	if len(rec.FuzzyHashes) > 0 {
		out["fuzzy_hashes"] = rec.FuzzyHashes
	}
	return out
}

func metricsPayload(m Metrics) map[string]interface{} {
	out := map[string]interface{}{
		"directories_listed": m.DirectoriesListed,
		"listing_failures":   m.ListingFailures,
		"files_matched":      m.FilesMatched,
		"files_fetched":      m.FilesFetched,
		"fetch_fallbacks":    m.FetchFallbacks,
		"fetch_failures":     m.FetchFailures,
		"files_truncated":    m.FilesTruncated,
		"findings":           m.Findings,
	}
	putString(out, "start_time", m.StartTime)
	putString(out, "end_time", m.EndTime)
	if len(m.Modes) > 0 {
		out["modes"] = m.Modes
	}
	return out
}

func putString(dst map[string]interface{}, key, value string) {
	if value != "" {
		dst[key] = value
	}
}

// sanitizePayload drops paths and credential material from a copy of the
// payload according to policy.
func sanitizePayload(recordType string, payload map[string]interface{}, policy otelPolicy) map[string]interface{} {
	if recordType != "finding" || len(payload) == 0 {
		return payload
	}
	sanitized := cloneMap(payload)
	fields, _ := payload["fields"].(map[string]interface{})
	fields = cloneMap(fields)
	if !policy.includePaths {
		delete(sanitized, "share")
		delete(sanitized, "path")
		for _, name := range otelPathFields {
			delete(fields, name)
		}
	}
	if !policy.includeSensitive {
		for _, name := range otelSensitiveFields {
			delete(fields, name)
		}
	}
	sanitized["fields"] = fields
	return sanitized
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.StringValue(fmt.Sprint(v))
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for k, v := range values {
		kvs = append(kvs, otelLog.KeyValue{Key: k, Value: toLogValue(v)})
	}
	return kvs
}

func semanticAttributes(recordType string, payload map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	switch recordType {
	case "run":
		kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(payload, "hostname"))
		kvs = appendStringAttr(kvs, "sysvolscan.domain", getStringField(payload, "domain"))
		kvs = appendStringAttr(kvs, string(semconv.ServiceVersionKey), getStringField(payload, "version"))
	case "finding":
		kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(payload, "host"))
		kvs = appendStringAttr(kvs, "sysvolscan.finding.kind", getStringField(payload, "kind"))
		kvs = appendStringAttr(kvs, "sysvolscan.finding.id", getStringField(payload, "id"))
		kvs = appendStringAttr(kvs, "sysvolscan.finding.rule", getStringField(payload, "rule"))
		if share := getStringField(payload, "share"); share != "" {
			kvs = append(kvs, otelLog.String("sysvolscan.share", share))
		}
	case "metrics":
		for _, key := range []string{"findings", "files_fetched", "fetch_failures", "listing_failures"} {
			if v, ok := payload[key].(int64); ok {
				kvs = append(kvs, otelLog.Int64("sysvolscan.metrics."+key, v))
			}
		}
	}
	return kvs
}

func getStringField(values map[string]interface{}, key string) string {
	if values == nil {
		return ""
	}
	s, _ := values[key].(string)
	return s
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}
