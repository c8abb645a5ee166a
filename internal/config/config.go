// Package config loads and holds the immutable value every worker process
// shares: listen address, TLS material, buffer sizes, timeouts, plugin
// class lists by family, the disabled-header list, the static directory,
// the devtools path, and the threadless flag.
package config

import (
	"time"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
	"github.com/pkg/errors"
)

// TLSMaterial is the CA triple plus the proxy's own server certificate,
// used to decide whether TLS-to-client and TLS-interception are available.
type TLSMaterial struct {
	CertFile        string `config:"cert_file"`
	KeyFile         string `config:"key_file"`
	CACertFile      string `config:"ca_cert_file"`
	CAKeyFile       string `config:"ca_key_file"`
	CASigningKeyFile string `config:"ca_signing_key_file"`
	CACertDir       string `config:"ca_cert_dir"`
}

// Complete reports whether every field needed to mint leaf certificates is
// present, the precondition for TLS interception (spec.md §4.5 step 3).
func (t TLSMaterial) Complete() bool {
	return t.CACertFile != "" && t.CAKeyFile != "" && t.CASigningKeyFile != "" && t.CACertDir != ""
}

// ToClientEnabled reports whether the proxy terminates TLS on the
// client-facing listener itself (distinct from interception, which
// terminates TLS on a per-CONNECT basis).
func (t TLSMaterial) ToClientEnabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// PluginClasses names the factory-registry keys to instantiate per family,
// in declaration order, for every new connection (spec.md §4.4, §9).
type PluginClasses struct {
	Core  []string `config:"core"`
	Proxy []string `config:"proxy"`
	Web   []string `config:"web"`
}

// Config is the immutable value constructed once at startup and shared
// read-only by every acceptor/worker/handler; nothing in this package
// mutates a Config after Load returns.
type Config struct {
	Hostname string `config:"hostname"`
	Port     int    `config:"port"`
	Backlog  int    `config:"backlog"`

	NumWorkers int  `config:"num_workers"`
	Threadless bool `config:"threadless"`

	Timeout          time.Duration `config:"timeout"`
	ClientRecvBufSize int          `config:"client_recvbuf_size"`
	ServerRecvBufSize int          `config:"server_recvbuf_size"`

	AuthCode       string   `config:"basic_auth"`
	DisableHeaders []string `config:"disable_headers"`

	TLS TLSMaterial `config:"tls"`

	EnableWebServer    bool   `config:"enable_web_server"`
	EnableStaticServer bool   `config:"enable_static_server"`
	StaticServerDir    string `config:"static_server_dir"`

	EnableDevtools  bool   `config:"enable_devtools"`
	DevtoolsWSPath  string `config:"devtools_ws_path"`
	DevtoolsCapacity int   `config:"devtools_capacity"`

	Plugins PluginClasses `config:"plugins"`

	PIDFile string `config:"pid_file"`

	// Version is embedded in the Via/Proxy-agent/Server header values; see
	// SPEC_FULL.md's supplemented-features note on proxy.py's version
	// constant.
	Version string `config:"version"`
}

// Default returns a Config with every field set to the same defaults
// proxy.py ships, translated into Go's zero-value-friendly equivalents
// where the original left a field optional.
func Default() *Config {
	return &Config{
		Hostname:          "127.0.0.1",
		Port:              8899,
		Backlog:           100,
		NumWorkers:        1,
		Threadless:        false,
		Timeout:           10 * time.Second,
		ClientRecvBufSize: 8192,
		ServerRecvBufSize: 8192,
		DisableHeaders:    []string{},
		DevtoolsCapacity:  1024,
		Version:           "govy v1.0.0",
	}
}

// Load reads a YAML config file via go-ucfg and overlays it on Default,
// the same two-step (defaults struct + ucfg.Unpack) pattern packetd's
// confengine wraps for its own services.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	uc, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, errors.Wrapf(err, "config: loading %s", path)
	}
	if err := uc.Unpack(cfg); err != nil {
		return nil, errors.Wrap(err, "config: unpacking into defaults")
	}
	return cfg, nil
}

// LoadBytes is Load's in-memory counterpart, used by tests and by embedded
// callers that already hold config content rather than a path.
func LoadBytes(content []byte) (*Config, error) {
	cfg := Default()
	if len(content) == 0 {
		return cfg, nil
	}
	uc, err := yaml.NewConfig(content, ucfg.PathSep("."))
	if err != nil {
		return nil, errors.Wrap(err, "config: parsing content")
	}
	if err := uc.Unpack(cfg); err != nil {
		return nil, errors.Wrap(err, "config: unpacking into defaults")
	}
	return cfg, nil
}

// AlwaysStrippedHeaders are removed from every non-CONNECT request
// regardless of the configurable DisableHeaders list (spec.md §4.5 step 4).
// Kept separate from DisableHeaders per the Open Question resolution in
// DESIGN.md: proxy.py's DEFAULT_DISABLE_HEADERS is empty, these two are
// always stripped independent of it.
var AlwaysStrippedHeaders = []string{"Proxy-Authorization", "Proxy-Connection"}
