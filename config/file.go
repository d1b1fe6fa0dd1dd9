package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a Resolver's settings.
//
//	defaults:
//	  service_name: http.client
//	  split_by_domain: false
//	  distributed_tracing: true
//	overrides:
//	  - pattern: 'example\.com'
//	    service_name: bar
type File struct {
	Defaults  FileDefaults   `yaml:"defaults"`
	Overrides []FileOverride `yaml:"overrides"`
}

// FileDefaults mirrors Settings. Unset fields keep the built-in defaults.
type FileDefaults struct {
	ServiceName        *string `yaml:"service_name"`
	SplitByDomain      *bool   `yaml:"split_by_domain"`
	DistributedTracing *bool   `yaml:"distributed_tracing"`
}

// FileOverride mirrors Override with a pattern in source form.
type FileOverride struct {
	Pattern            string  `yaml:"pattern"`
	ServiceName        *string `yaml:"service_name"`
	SplitByDomain      *bool   `yaml:"split_by_domain"`
	DistributedTracing *bool   `yaml:"distributed_tracing"`
}

// Environment variables consulted by ApplyEnv.
const (
	EnvServiceName        = "APMCORE_HTTP_SERVICE_NAME"
	EnvSplitByDomain      = "APMCORE_HTTP_SPLIT_BY_DOMAIN"
	EnvDistributedTracing = "APMCORE_DISTRIBUTED_TRACING"
)

// LoadFile reads a YAML configuration file, expands ${VAR} references with
// ExpandEnvStrict and parses the result. Whole-line comments are not expanded, so a
// commented-out ${VAR} need not be set. A reference in a trailing comment is
// expanded and must be set.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	expanded, err := expandYAML(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand configuration file %q: %w", path, err)
	}

	f, err := Parse([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML configuration and checks every override has a pattern.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	for i, o := range f.Overrides {
		if o.Pattern == "" {
			return nil, fmt.Errorf("%w: overrides[%d]: pattern is required", ErrInvalidFile, i)
		}
	}
	return &f, nil
}

// ApplyEnv overwrites the file defaults from environment variables. Unparseable
// booleans are ignored.
func (f *File) ApplyEnv() {
	if v := os.Getenv(EnvServiceName); v != "" {
		f.Defaults.ServiceName = &v
	}
	if v := os.Getenv(EnvSplitByDomain); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Defaults.SplitByDomain = &b
		}
	}
	if v := os.Getenv(EnvDistributedTracing); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Defaults.DistributedTracing = &b
		}
	}
}

// Apply merges the file into r: defaults first, then overrides appended in file order.
// Every pattern is compiled before r is touched, so a bad file leaves r unchanged.
func (f *File) Apply(r *Resolver) error {
	type compiled struct {
		re   *regexp.Regexp
		opts []Option
	}

	pending := make([]compiled, 0, len(f.Overrides))
	for i, o := range f.Overrides {
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return fmt.Errorf("overrides[%d]: %w: %q: %v", i, ErrInvalidPattern, o.Pattern, err)
		}

		var opts []Option
		if o.ServiceName != nil {
			opts = append(opts, WithServiceName(*o.ServiceName))
		}
		if o.SplitByDomain != nil {
			opts = append(opts, WithSplitByDomain(*o.SplitByDomain))
		}
		if o.DistributedTracing != nil {
			opts = append(opts, WithDistributedTracing(*o.DistributedTracing))
		}
		pending = append(pending, compiled{re: re, opts: opts})
	}

	d := r.Defaults()
	if f.Defaults.ServiceName != nil {
		d.ServiceName = *f.Defaults.ServiceName
	}
	if f.Defaults.SplitByDomain != nil {
		d.SplitByDomain = *f.Defaults.SplitByDomain
	}
	if f.Defaults.DistributedTracing != nil {
		d.DistributedTracing = *f.Defaults.DistributedTracing
	}
	r.SetDefaults(d)

	for _, p := range pending {
		if err := r.DescribeRegexp(p.re, p.opts...); err != nil {
			return err
		}
	}
	return nil
}
