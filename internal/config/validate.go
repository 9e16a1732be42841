package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is the dotted YAML path of the
// offending key, e.g. "storage.kind".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownKinds     = map[string]struct{}{"postgres": {}, "mysql": {}, "sqlite": {}, "mssql": {}}
	knownEncodings = map[string]struct{}{"utf-8": {}, "windows-1252": {}, "iso-8859-1": {}}
	knownFormats   = map[string]struct{}{"json": {}, "console": {}}
	knownLevels    = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
)

// Validate performs static checks and returns every issue found. It does not
// mutate c.
func Validate(c Config) []Issue {
	var issues []Issue
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateIngest(c.Ingest)...)
	issues = append(issues, validateLog(c.Log)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		issues = append(issues, Issue{SeverityWarning, "http.addr", "http.addr is empty; serve will listen on a random port"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if _, ok := knownKinds[strings.ToLower(s.Kind)]; !ok {
		issues = append(issues, Issue{SeverityError, "storage.kind",
			fmt.Sprintf("unknown storage kind %q; want postgres, mysql, sqlite or mssql", s.Kind)})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "storage.dsn must not be empty"})
	}
	if s.MaxConns < 0 {
		issues = append(issues, Issue{SeverityError, "storage.max_conns", "storage.max_conns must be >= 0"})
	}
	if strings.EqualFold(s.Kind, "sqlite") && s.MaxConns > 1 {
		issues = append(issues, Issue{SeverityWarning, "storage.max_conns",
			"sqlite serializes writers; more than one connection only adds lock contention"})
	}
	return issues
}

func validateIngest(in Ingest) []Issue {
	var issues []Issue
	if in.ChunkSize <= 0 {
		issues = append(issues, Issue{SeverityError, "ingest.chunk_size", "ingest.chunk_size must be > 0"})
	} else if in.ChunkSize > 50000 {
		issues = append(issues, Issue{SeverityWarning, "ingest.chunk_size",
			fmt.Sprintf("ingest.chunk_size %d keeps very large transactions open", in.ChunkSize)})
	}
	if strings.TrimSpace(in.TablePrefix) == "" {
		issues = append(issues, Issue{SeverityError, "ingest.table_prefix", "ingest.table_prefix must not be empty"})
	}
	if !in.UniqueSuffix {
		issues = append(issues, Issue{SeverityWarning, "ingest.unique_suffix",
			"runs started in the same second share a table name; enable unique_suffix for concurrent ingestion"})
	}
	if strings.TrimSpace(in.UploadDir) == "" {
		issues = append(issues, Issue{SeverityError, "ingest.upload_dir", "ingest.upload_dir must not be empty"})
	}
	if in.MaxUploadBytes <= 0 {
		issues = append(issues, Issue{SeverityError, "ingest.max_upload_bytes", "ingest.max_upload_bytes must be > 0"})
	}
	if _, ok := knownEncodings[strings.ToLower(in.Encoding)]; !ok {
		issues = append(issues, Issue{SeverityError, "ingest.encoding",
			fmt.Sprintf("unsupported encoding %q; want utf-8, windows-1252 or iso-8859-1", in.Encoding)})
	}
	if utf8.RuneCountInString(in.Delimiter) != 1 {
		issues = append(issues, Issue{SeverityError, "ingest.delimiter", "ingest.delimiter must be a single character"})
	}
	if in.Parallel <= 0 {
		issues = append(issues, Issue{SeverityError, "ingest.parallel", "ingest.parallel must be > 0"})
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	if _, ok := knownLevels[strings.ToLower(l.Level)]; !ok {
		issues = append(issues, Issue{SeverityError, "log.level", fmt.Sprintf("unknown log level %q", l.Level)})
	}
	if _, ok := knownFormats[strings.ToLower(l.Format)]; !ok {
		issues = append(issues, Issue{SeverityError, "log.format", fmt.Sprintf("unknown log format %q; want json or console", l.Format)})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch strings.ToLower(m.Backend) {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend requires metrics.pushgateway_url"})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.datadog_addr", "datadog backend requires metrics.datadog_addr"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown metrics backend %q; want none, pushgateway or datadog", m.Backend)})
	}
	return issues
}

// DelimiterRune returns the configured delimiter rune, ',' when unset.
func (in Ingest) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(in.Delimiter)
	if r == utf8.RuneError {
		return ','
	}
	return r
}
