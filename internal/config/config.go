// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smileynet/qrcard/internal/directory"
	"github.com/smileynet/qrcard/internal/output"
	"github.com/smileynet/qrcard/internal/render"
)

// Source kinds.
const (
	SourceLDAP = "ldap"
	SourceFile = "file"
)

// Sink kinds.
const (
	SinkLocal = "local"
	SinkS3    = "s3"
)

// DefaultOutputDir is created beside the invocation directory.
const DefaultOutputDir = "QR vCards"

// Config holds all qrcard configuration.
type Config struct {
	Source  Source  `yaml:"source"`
	LDAP    LDAP    `yaml:"ldap"`
	Render  Render  `yaml:"render"`
	Output  Output  `yaml:"output"`
	Batch   Batch   `yaml:"batch"`
	Logging Logging `yaml:"logging"`
	State   State   `yaml:"state"`
}

// Source selects where records come from.
type Source struct {
	Kind string `yaml:"kind"` // "ldap" | "file"
	File string `yaml:"file"` // YAML record list for the file source
}

// LDAP holds directory connection and search settings.
type LDAP struct {
	URL                string        `yaml:"url"`
	BindDN             string        `yaml:"bind_dn"`
	BindPassword       string        `yaml:"bind_password"`
	BaseDN             string        `yaml:"base_dn"`
	Filter             string        `yaml:"filter"`
	PageSize           int           `yaml:"page_size"`
	IDAttribute        string        `yaml:"id_attribute"`
	StartTLS           bool          `yaml:"start_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

// Render holds image settings shared by every card.
type Render struct {
	Scale  int    `yaml:"scale"`  // Pixels per module, 10-2000
	ECC    string `yaml:"ecc"`    // low | medium | quartile | high
	Dark   string `yaml:"dark"`   // #RRGGBB or r,g,b
	Light  string `yaml:"light"`  // #RRGGBB or r,g,b
	Format string `yaml:"format"` // png | svg
}

// Output holds destination settings.
type Output struct {
	Dir        string `yaml:"dir"`
	Collisions string `yaml:"collisions"` // suffix | fail
	Sink       string `yaml:"sink"`       // local | s3
	S3         S3     `yaml:"s3"`
}

// S3 holds object storage settings for the s3 sink.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Batch holds worker settings.
type Batch struct {
	Workers int `yaml:"workers"`
}

// Logging holds logger settings.
type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// State holds report history settings.
type State struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	rc := render.DefaultConfig()
	return Config{
		Source: Source{Kind: SourceLDAP},
		LDAP: LDAP{
			Filter:      directory.DefaultFilter,
			PageSize:    500,
			IDAttribute: "sAMAccountName",
			Timeout:     30 * time.Second,
		},
		Render: Render{
			Scale:  rc.Scale,
			ECC:    rc.Level.String(),
			Dark:   render.HexColor(rc.Dark),
			Light:  render.HexColor(rc.Light),
			Format: string(rc.Format),
		},
		Output: Output{
			Dir:        DefaultOutputDir,
			Collisions: string(output.CollisionSuffix),
			Sink:       SinkLocal,
			S3:         S3{Region: "us-east-1", UseSSL: true},
		},
		Batch:   Batch{Workers: 4},
		Logging: Logging{Level: "warn", Format: "console"},
		State:   State{Dir: ".qrcard/runs"},
	}
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable. It runs before any record
// is fetched, so every configuration mistake surfaces up front.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceLDAP:
		if c.LDAP.URL == "" {
			return errors.New("config: ldap.url cannot be empty for the ldap source")
		}
		if c.LDAP.BaseDN == "" {
			return errors.New("config: ldap.base_dn cannot be empty for the ldap source")
		}
		if c.LDAP.PageSize < 0 {
			return fmt.Errorf("config: ldap.page_size must be non-negative, got %d", c.LDAP.PageSize)
		}
		if c.LDAP.Timeout < 0 {
			return fmt.Errorf("config: ldap.timeout must be non-negative, got %v", c.LDAP.Timeout)
		}
		if c.LDAP.Filter != "" {
			if err := directory.ValidateFilter(c.LDAP.Filter); err != nil {
				return fmt.Errorf("config: ldap.filter: %w", err)
			}
		}
	case SourceFile:
		if c.Source.File == "" {
			return errors.New("config: source.file cannot be empty for the file source")
		}
	default:
		return fmt.Errorf("config: source.kind must be \"ldap\" or \"file\", got %q", c.Source.Kind)
	}

	if _, err := c.RenderConfig(); err != nil {
		return err
	}
	if _, err := output.ParseCollisionPolicy(c.Output.Collisions); err != nil {
		return fmt.Errorf("config: output.collisions: %w", err)
	}
	switch c.Output.Sink {
	case SinkLocal:
		if c.Output.Dir == "" {
			return errors.New("config: output.dir cannot be empty")
		}
	case SinkS3:
		if c.Output.S3.Endpoint == "" || c.Output.S3.Bucket == "" {
			return errors.New("config: output.s3.endpoint and output.s3.bucket are required for the s3 sink")
		}
	default:
		return fmt.Errorf("config: output.sink must be \"local\" or \"s3\", got %q", c.Output.Sink)
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("config: batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// RenderConfig parses the render section. Errors wrap render.ErrConfig.
func (c *Config) RenderConfig() (render.Config, error) {
	level, err := render.ParseLevel(c.Render.ECC)
	if err != nil {
		return render.Config{}, err
	}
	dark, err := render.ParseColor(c.Render.Dark)
	if err != nil {
		return render.Config{}, fmt.Errorf("render.dark: %w", err)
	}
	light, err := render.ParseColor(c.Render.Light)
	if err != nil {
		return render.Config{}, fmt.Errorf("render.light: %w", err)
	}
	format, err := render.ParseFormat(c.Render.Format)
	if err != nil {
		return render.Config{}, err
	}
	rc := render.Config{Scale: c.Render.Scale, Level: level, Dark: dark, Light: light, Format: format}
	if err := rc.Validate(); err != nil {
		return render.Config{}, err
	}
	return rc, nil
}

// CollisionPolicy returns the parsed output.collisions value.
func (c *Config) CollisionPolicy() output.CollisionPolicy {
	p, err := output.ParseCollisionPolicy(c.Output.Collisions)
	if err != nil {
		return output.CollisionSuffix
	}
	return p
}

// LDAPConfig returns the directory connection settings.
func (c *Config) LDAPConfig() directory.LDAPConfig {
	return directory.LDAPConfig{
		URL:                c.LDAP.URL,
		BindDN:             c.LDAP.BindDN,
		BindPassword:       c.LDAP.BindPassword,
		BaseDN:             c.LDAP.BaseDN,
		IDAttribute:        c.LDAP.IDAttribute,
		PageSize:           uint32(c.LDAP.PageSize),
		StartTLS:           c.LDAP.StartTLS,
		InsecureSkipVerify: c.LDAP.InsecureSkipVerify,
		Timeout:            c.LDAP.Timeout,
	}
}

// BucketConfig returns the object storage settings.
func (c *Config) BucketConfig() output.BucketConfig {
	return output.BucketConfig{
		Endpoint:  c.Output.S3.Endpoint,
		Bucket:    c.Output.S3.Bucket,
		Prefix:    c.Output.S3.Prefix,
		Region:    c.Output.S3.Region,
		UseSSL:    c.Output.S3.UseSSL,
		AccessKey: c.Output.S3.AccessKey,
		SecretKey: c.Output.S3.SecretKey,
	}
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: QRCARD_LDAP_URL, QRCARD_BIND_DN, QRCARD_BIND_PASSWORD,
// QRCARD_BASE_DN, QRCARD_FILTER, QRCARD_OUT_DIR, QRCARD_SCALE, QRCARD_ECC,
// QRCARD_WORKERS, QRCARD_LOG_LEVEL, QRCARD_S3_ACCESS_KEY, QRCARD_S3_SECRET_KEY.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"QRCARD_LDAP_URL", &c.LDAP.URL},
		{"QRCARD_BIND_DN", &c.LDAP.BindDN},
		{"QRCARD_BIND_PASSWORD", &c.LDAP.BindPassword},
		{"QRCARD_BASE_DN", &c.LDAP.BaseDN},
		{"QRCARD_FILTER", &c.LDAP.Filter},
		{"QRCARD_OUT_DIR", &c.Output.Dir},
		{"QRCARD_ECC", &c.Render.ECC},
		{"QRCARD_LOG_LEVEL", &c.Logging.Level},
		{"QRCARD_S3_ACCESS_KEY", &c.Output.S3.AccessKey},
		{"QRCARD_S3_SECRET_KEY", &c.Output.S3.SecretKey},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"QRCARD_SCALE", &c.Render.Scale},
		{"QRCARD_WORKERS", &c.Batch.Workers},
	}
	for _, n := range ints {
		v := os.Getenv(n.env)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", n.env, v, err)
		}
		*n.dst = i
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Source  *rawSource  `yaml:"source"`
	LDAP    *rawLDAP    `yaml:"ldap"`
	Render  *rawRender  `yaml:"render"`
	Output  *rawOutput  `yaml:"output"`
	Batch   *rawBatch   `yaml:"batch"`
	Logging *rawLogging `yaml:"logging"`
	State   *rawState   `yaml:"state"`
}

type rawSource struct {
	Kind *string `yaml:"kind"`
	File *string `yaml:"file"`
}

type rawLDAP struct {
	URL                *string        `yaml:"url"`
	BindDN             *string        `yaml:"bind_dn"`
	BindPassword       *string        `yaml:"bind_password"`
	BaseDN             *string        `yaml:"base_dn"`
	Filter             *string        `yaml:"filter"`
	PageSize           *int           `yaml:"page_size"`
	IDAttribute        *string        `yaml:"id_attribute"`
	StartTLS           *bool          `yaml:"start_tls"`
	InsecureSkipVerify *bool          `yaml:"insecure_skip_verify"`
	Timeout            *time.Duration `yaml:"timeout"`
}

type rawRender struct {
	Scale  *int    `yaml:"scale"`
	ECC    *string `yaml:"ecc"`
	Dark   *string `yaml:"dark"`
	Light  *string `yaml:"light"`
	Format *string `yaml:"format"`
}

type rawOutput struct {
	Dir        *string `yaml:"dir"`
	Collisions *string `yaml:"collisions"`
	Sink       *string `yaml:"sink"`
	S3         *rawS3  `yaml:"s3"`
}

type rawS3 struct {
	Endpoint  *string `yaml:"endpoint"`
	Bucket    *string `yaml:"bucket"`
	Prefix    *string `yaml:"prefix"`
	Region    *string `yaml:"region"`
	UseSSL    *bool   `yaml:"use_ssl"`
	AccessKey *string `yaml:"access_key"`
	SecretKey *string `yaml:"secret_key"`
}

type rawBatch struct {
	Workers *int `yaml:"workers"`
}

type rawLogging struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type rawState struct {
	Dir *string `yaml:"dir"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// set copies *src into *dst when src is non-nil.
func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if s := layer.Source; s != nil {
		set(&c.Source.Kind, s.Kind)
		set(&c.Source.File, s.File)
	}
	if l := layer.LDAP; l != nil {
		set(&c.LDAP.URL, l.URL)
		set(&c.LDAP.BindDN, l.BindDN)
		set(&c.LDAP.BindPassword, l.BindPassword)
		set(&c.LDAP.BaseDN, l.BaseDN)
		set(&c.LDAP.Filter, l.Filter)
		set(&c.LDAP.PageSize, l.PageSize)
		set(&c.LDAP.IDAttribute, l.IDAttribute)
		set(&c.LDAP.StartTLS, l.StartTLS)
		set(&c.LDAP.InsecureSkipVerify, l.InsecureSkipVerify)
		set(&c.LDAP.Timeout, l.Timeout)
	}
	if r := layer.Render; r != nil {
		set(&c.Render.Scale, r.Scale)
		set(&c.Render.ECC, r.ECC)
		set(&c.Render.Dark, r.Dark)
		set(&c.Render.Light, r.Light)
		set(&c.Render.Format, r.Format)
	}
	if o := layer.Output; o != nil {
		set(&c.Output.Dir, o.Dir)
		set(&c.Output.Collisions, o.Collisions)
		set(&c.Output.Sink, o.Sink)
		if s3 := o.S3; s3 != nil {
			set(&c.Output.S3.Endpoint, s3.Endpoint)
			set(&c.Output.S3.Bucket, s3.Bucket)
			set(&c.Output.S3.Prefix, s3.Prefix)
			set(&c.Output.S3.Region, s3.Region)
			set(&c.Output.S3.UseSSL, s3.UseSSL)
			set(&c.Output.S3.AccessKey, s3.AccessKey)
			set(&c.Output.S3.SecretKey, s3.SecretKey)
		}
	}
	if b := layer.Batch; b != nil {
		set(&c.Batch.Workers, b.Workers)
	}
	if l := layer.Logging; l != nil {
		set(&c.Logging.Level, l.Level)
		set(&c.Logging.Format, l.Format)
	}
	if s := layer.State; s != nil {
		set(&c.State.Dir, s.Dir)
	}
}
