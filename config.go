// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/z5labs/listener/config"
	"github.com/z5labs/listener/internal/otel"

	bedrockcfg "github.com/z5labs/bedrock/config"
)

// ConfigSource renders r as a Go template and parses the result as YAML.
// Two template functions are available:
//   - env - substitutes an environment variable, or nil when unset
//   - default - provides a default for a nil value
func ConfigSource(r io.Reader) bedrockcfg.Source {
	return bedrockcfg.FromYaml(
		bedrockcfg.RenderTextTemplate(
			r,
			bedrockcfg.TemplateFunc("env", func(key string) any {
				v, ok := os.LookupEnv(key)
				if ok {
					return v
				}
				return nil
			}),
			bedrockcfg.TemplateFunc("default", func(def, v any) any {
				if v == nil {
					return def
				}
				return v
			}),
		),
	)
}

//go:embed default_config.yaml
var defaultConfig []byte

// DefaultConfig returns the config source corresponding to the [Config] type.
func DefaultConfig() bedrockcfg.Source {
	return ConfigSource(bytes.NewReader(defaultConfig))
}

// ContainerConfig configures a listener container.
type ContainerConfig struct {
	Name                  string        `config:"name"`
	Mode                  string        `config:"mode"`
	MaxConcurrentMessages int           `config:"max_concurrent_messages"`
	MaxMessagesPerPoll    int           `config:"max_messages_per_poll"`
	PollBackOff           time.Duration `config:"poll_backoff"`
	ShutdownTimeout       time.Duration `config:"shutdown_timeout"`
}

// Config is the common configuration of listener applications.
type Config struct {
	OTel      config.OTel     `config:"otel"`
	Container ContainerConfig `config:"container"`
}

// Unmarshal reads every source into v, later sources overriding earlier ones.
// Applications embed [Config] with the squash tag to extend it.
func Unmarshal(v any, srcs ...bedrockcfg.Source) error {
	m, err := bedrockcfg.Read(bedrockcfg.MultiSource(srcs...))
	if err != nil {
		return err
	}
	return m.Unmarshal(v)
}

// ReadConfig reads and unmarshals every source into a [Config].
func ReadConfig(srcs ...bedrockcfg.Source) (Config, error) {
	var cfg Config
	err := Unmarshal(&cfg, srcs...)
	return cfg, err
}

// InitializeOTel installs the global OTel providers and returns
// a function which flushes and shuts them down.
func (cfg Config) InitializeOTel(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := otel.Initialize(ctx, cfg.OTel)
	if err != nil {
		return nil, err
	}
	return shutdown, nil
}
