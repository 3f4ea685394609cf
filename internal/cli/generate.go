package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/events"
	"github.com/qrandom/qrng/internal/job"
	"github.com/qrandom/qrng/internal/pipeline"
	"github.com/qrandom/qrng/internal/simulator"
	"github.com/qrandom/qrng/pkg/metrics"
)

type GenerateOptions struct {
	GlobalOptions

	Bits                 int
	Clamp                bool
	PreferredBackends    []string
	PollInterval         time.Duration
	MaxWait              time.Duration
	SelectTimeout        time.Duration
	FallbackOnJobFailure bool
	DashboardURL         string
	Output               string
	MetricsFile          string
	EventsFile           string
}

type generateOutput struct {
	Backend     string   `json:"backend"`
	Kind        string   `json:"kind"`
	Phase       string   `json:"phase"`
	JobID       string   `json:"jobId"`
	MonitorURL  string   `json:"monitorUrl,omitempty"`
	Elapsed     string   `json:"elapsed"`
	Bits        string   `json:"bits"`
	Decimal     string   `json:"decimal"`
	Zeros       int      `json:"zeros"`
	Ones        int      `json:"ones"`
	OnesRatio   float64  `json:"onesRatio"`
	EntropyPass bool     `json:"entropyPass"`
	Rejected    []string `json:"rejected,omitempty"`
	FellBack    bool     `json:"fellBack,omitempty"`
}

func DefaultGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Bits:          circuit.DefaultBitLength,
		Output:        textFormat,
	}
}

func NewCmdGenerate() *cobra.Command {
	o := DefaultGenerateOptions()
	cmd := &cobra.Command{
		Use:   "generate [BITS]",
		Short: "Generate random bits by measuring qubits in superposition",
		Example: "generate 32\n" +
			"generate --bits 256 --backend ibm_kyiv,ibm_sherbrooke -o json",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *GenerateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVarP(&o.Bits, "bits", "b", o.Bits, fmt.Sprintf("Number of random bits, between %d and %d", circuit.MinBitLength, circuit.MaxBitLength))
	fs.BoolVar(&o.Clamp, "clamp", o.Clamp, "Bring an out of range bit length back into range instead of failing")
	fs.StringSliceVar(&o.PreferredBackends, "backend", o.PreferredBackends, "Preferred backends, in order. Defaults to $QRNG_PREFERRED_BACKENDS")
	fs.DurationVar(&o.PollInterval, "poll-interval", o.PollInterval, "Interval between two job status polls. Defaults to $QRNG_POLL_INTERVAL")
	fs.DurationVar(&o.MaxWait, "max-wait", o.MaxWait, "Maximum time to wait for the job before cancelling it. Defaults to $QRNG_MAX_WAIT")
	fs.DurationVar(&o.SelectTimeout, "select-timeout", o.SelectTimeout, "Maximum time spent selecting a backend. Defaults to $QRNG_SELECT_TIMEOUT")
	fs.BoolVar(&o.FallbackOnJobFailure, "fallback", o.FallbackOnJobFailure, "Rerun on the local simulator when the hardware job fails or times out")
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputFlagUsage())
	fs.StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile, "Write the collected metrics to this file in Prometheus text format")
	fs.StringVar(&o.EventsFile, "events-file", o.EventsFile, "Append the job lifecycle to this file as CloudEvents, one per line. \"-\" logs them instead")
}

func (o *GenerateOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	if len(args) == 1 {
		if cmd.Flags().Changed("bits") {
			return fmt.Errorf("bit length given both as argument and with --bits")
		}
		bits, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid bit length %q: %w", args[0], err)
		}
		o.Bits = bits
	}
	if o.Clamp {
		o.Bits = circuit.Clamp(o.Bits)
	}

	cfg := o.cfg.Pipeline
	if !cmd.Flags().Changed("backend") {
		o.PreferredBackends = cfg.PreferredBackends
	}
	if !cmd.Flags().Changed("poll-interval") {
		o.PollInterval = cfg.PollInterval
	}
	if !cmd.Flags().Changed("max-wait") {
		o.MaxWait = cfg.MaxWait
	}
	if !cmd.Flags().Changed("select-timeout") {
		o.SelectTimeout = cfg.SelectTimeout
	}
	if !cmd.Flags().Changed("fallback") {
		o.FallbackOnJobFailure = cfg.FallbackOnJobFailure
	}
	o.DashboardURL = strings.TrimSuffix(o.cfg.Service.DashboardURL, "/")
	return nil
}

func (o *GenerateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if err := validateOutput(o.Output); err != nil {
		return err
	}
	if _, err := circuit.Build(o.Bits); err != nil {
		return err
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive")
	}
	return nil
}

func (o *GenerateOptions) Run(ctx context.Context, w io.Writer) error {
	registry, hardware, err := o.Backends()
	if err != nil {
		return fmt.Errorf("loading backends: %w", err)
	}

	opts := pipeline.Options{
		PreferredBackends:    o.PreferredBackends,
		PollInterval:         o.PollInterval,
		MaxWait:              o.MaxWait,
		SelectTimeout:        o.SelectTimeout,
		FallbackOnJobFailure: o.FallbackOnJobFailure,
	}
	switch o.EventsFile {
	case "":
	case "-":
		opts.Events = events.NewEventProducer(&events.LogWriter{})
	default:
		f, err := os.OpenFile(o.EventsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening events file: %w", err)
		}
		opts.Events = events.NewEventProducer(events.NewJSONWriter(f))
	}

	p := pipeline.New(registry, job.NewDispatcher(hardware, simulator.New()), opts)
	result, runErr := p.Run(ctx, o.Bits)

	if opts.Events != nil {
		// closes the file too
		if err := opts.Events.Close(); err != nil {
			return fmt.Errorf("writing events: %w", err)
		}
	}

	if o.MetricsFile != "" {
		if err := metrics.WriteFile(o.MetricsFile); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	out := o.output(result)
	if o.Output != textFormat {
		return printStructured(w, o.Output, out)
	}
	return printGenerated(w, out)
}

func (o *GenerateOptions) output(result *pipeline.Result) generateOutput {
	j, report := result.Job, result.Report
	bits, _ := j.Result()

	out := generateOutput{
		Backend:     j.Backend().Name,
		Kind:        string(j.Backend().Kind),
		Phase:       string(result.Phase),
		JobID:       j.ID(),
		Elapsed:     j.Elapsed().Round(time.Millisecond).String(),
		Bits:        bits,
		Decimal:     report.Decimal(),
		Zeros:       report.Zeros,
		Ones:        report.Ones,
		OnesRatio:   report.OnesRatio,
		EntropyPass: report.EntropyPass,
		Rejected:    result.Rejected,
		FellBack:    result.FellBack,
	}
	if !j.Backend().IsLocal() && o.DashboardURL != "" {
		out.MonitorURL = fmt.Sprintf("%s/jobs/%s", o.DashboardURL, j.ID())
	}
	return out
}

func printGenerated(w io.Writer, out generateOutput) error {
	entropy := "Fail"
	if out.EntropyPass {
		entropy = "Pass"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Backend: %s (%s)\n", out.Backend, out.Kind)
	fmt.Fprintf(&b, "Job ID: %s\n", out.JobID)
	if out.MonitorURL != "" {
		fmt.Fprintf(&b, "Monitor at: %s\n", out.MonitorURL)
	}
	if out.FellBack {
		fmt.Fprintf(&b, "Hardware job did not complete, rerun on the local simulator\n")
	}
	fmt.Fprintf(&b, "Elapsed: %s\n", out.Elapsed)
	fmt.Fprintf(&b, "\nRandom bits: %s\n", out.Bits)
	fmt.Fprintf(&b, "Decimal value: %s\n", out.Decimal)
	fmt.Fprintf(&b, "Bit distribution: %d zeros, %d ones\n", out.Zeros, out.Ones)
	fmt.Fprintf(&b, "Entropy test: %s\n", entropy)

	_, err := io.WriteString(w, b.String())
	return err
}
