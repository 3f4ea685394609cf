package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"

	"github.com/qrandom/qrng/internal/backend"
)

type BackendsOptions struct {
	GlobalOptions

	Operational bool
	Output      string
}

func DefaultBackendsOptions() *BackendsOptions {
	return &BackendsOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Output:        textFormat,
	}
}

func NewCmdBackends() *cobra.Command {
	o := DefaultBackendsOptions()
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List the backends jobs can be submitted to",
		Args:  cobra.NoArgs,
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

func (o *BackendsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Operational, "operational", o.Operational, "Only list operational backends")
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputFlagUsage())
}

func (o *BackendsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validateOutput(o.Output)
}

func (o *BackendsOptions) Run(ctx context.Context, w io.Writer) error {
	registry, _, err := o.Backends()
	if err != nil {
		return fmt.Errorf("loading backends: %w", err)
	}

	candidates, err := registry.ListBackends(ctx)
	if err != nil {
		return fmt.Errorf("listing backends: %w", err)
	}
	if o.Operational {
		candidates = funk.Filter(candidates, func(c backend.Candidate) bool {
			return c.Operational
		}).([]backend.Candidate)
	}
	// the simulator is always there, even if no registry lists it
	candidates = append(candidates, backend.SimulatorCandidate())

	if o.Output != textFormat {
		return printStructured(w, o.Output, candidates)
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tOPERATIONAL\tQUEUE")
	for _, c := range candidates {
		queue := "-"
		if c.QueueDepth != nil {
			queue = strconv.Itoa(*c.QueueDepth)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Name, c.Kind, c.Operational, queue)
	}
	return tw.Flush()
}
