package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service  *svcConfig
	Pipeline *pipelineConfig
	FakeQPU  *fakeQPUConfig
}

// svcConfig describes how to reach the remote QPU service.
// Without APIKey and URL no hardware is available and jobs run on the local simulator.
type svcConfig struct {
	APIKey       string `envconfig:"QRNG_API_KEY" default:""`
	Instance     string `envconfig:"QRNG_INSTANCE" default:"Quantum_rng" validate:"required"`
	URL          string `envconfig:"QRNG_SERVICE_URL" default:"" validate:"omitempty,url"`
	DashboardURL string `envconfig:"QRNG_DASHBOARD_URL" default:"https://quantum.ibm.com" validate:"omitempty,url"`
	RegistryFile string `envconfig:"QRNG_REGISTRY_FILE" default:""`
	LogLevel     string `envconfig:"QRNG_LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

type pipelineConfig struct {
	PreferredBackends    []string      `envconfig:"QRNG_PREFERRED_BACKENDS" default:"ibm_sherbrooke"`
	PollInterval         time.Duration `envconfig:"QRNG_POLL_INTERVAL" default:"2s" validate:"gt=0"`
	MaxWait              time.Duration `envconfig:"QRNG_MAX_WAIT" default:"5m" validate:"gt=0"`
	SelectTimeout        time.Duration `envconfig:"QRNG_SELECT_TIMEOUT" default:"30s" validate:"gte=0"`
	FallbackOnJobFailure bool          `envconfig:"QRNG_FALLBACK_ON_JOB_FAILURE" default:"false"`
}

type fakeQPUConfig struct {
	Address         string        `envconfig:"QRNG_FAKEQPU_ADDRESS" default:":8089"`
	MetricsAddress  string        `envconfig:"QRNG_FAKEQPU_METRICS_ADDRESS" default:":8090"`
	BackendsFile    string        `envconfig:"QRNG_FAKEQPU_BACKENDS_FILE" default:""`
	FailingBackends []string      `envconfig:"QRNG_FAKEQPU_FAILING_BACKENDS" default:""`
	JobDelay        time.Duration `envconfig:"QRNG_FAKEQPU_JOB_DELAY" default:"3s" validate:"gte=0"`
}

// New returns the process configuration, loading it from the environment on first use.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := Load()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	for name, s := range map[string]any{"service": c.Service, "pipeline": c.Pipeline, "fakeqpu": c.FakeQPU} {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", name, err)
		}
	}
	return nil
}

// HardwareEnabled is true when the remote QPU service at serviceURL can be
// used. Callers pass Service.URL unless a flag overrides it.
func (c *Config) HardwareEnabled(serviceURL string) bool {
	return c.Service.APIKey != "" && serviceURL != ""
}

func (c *Config) String() string {
	key := "<unset>"
	if c.Service.APIKey != "" {
		key = "<redacted>"
	}
	return fmt.Sprintf("service=%s instance=%s api_key=%s preferred=%v poll_interval=%s max_wait=%s",
		c.Service.URL, c.Service.Instance, key, c.Pipeline.PreferredBackends, c.Pipeline.PollInterval, c.Pipeline.MaxWait)
}
