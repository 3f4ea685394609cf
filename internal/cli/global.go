package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/client"
	"github.com/qrandom/qrng/internal/config"
	"github.com/qrandom/qrng/internal/executor"
)

// GlobalOptions tell where backends come from. Flags override the QRNG_* environment.
type GlobalOptions struct {
	ServiceURL   string
	RegistryFile string
	Timeout      time.Duration

	cfg *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Timeout: 30 * time.Second,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServiceURL, "service-url", "u", o.ServiceURL, "Address of the QPU service. Defaults to $QRNG_SERVICE_URL")
	fs.StringVar(&o.RegistryFile, "registry-file", o.RegistryFile, "YAML file listing the backends, used when no QPU service is configured")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Timeout of a single request to the QPU service")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	o.cfg = cfg

	if !cmd.Flags().Changed("service-url") {
		o.ServiceURL = cfg.Service.URL
	}
	if !cmd.Flags().Changed("registry-file") {
		o.RegistryFile = cfg.Service.RegistryFile
	}
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// HardwareEnabled is true when a QPU service and its API key are known.
func (o *GlobalOptions) HardwareEnabled() bool {
	return o.cfg.HardwareEnabled(o.ServiceURL)
}

// Backends returns the registry and the remote executor to use.
//
// With a QPU service both are the service client. Otherwise the registry is
// read from RegistryFile, or left empty, and the remote executor is nil:
// every hardware submission then fails and jobs end on the simulator.
func (o *GlobalOptions) Backends() (backend.Registry, executor.Executor, error) {
	if o.HardwareEnabled() {
		qpu := client.NewQPUClient(o.ServiceURL, o.cfg.Service.APIKey,
			client.WithInstance(o.cfg.Service.Instance),
			client.WithTimeout(o.Timeout),
		)
		return qpu, qpu, nil
	}

	if o.RegistryFile != "" {
		registry, err := backend.LoadStaticRegistry(o.RegistryFile)
		if err != nil {
			return nil, nil, err
		}
		return registry, nil, nil
	}
	return backend.NewStaticRegistry(), nil, nil
}
