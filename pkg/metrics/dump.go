package metrics

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Write gathers g and writes it in the text exposition format. When prefix
// is not empty only the families whose name starts with it are written.
func Write(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range filterFamilies(families, prefix) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile dumps the qrng metrics of the default registry into path.
// The go runtime and process collectors are left out.
func WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Write(f, prometheus.DefaultGatherer, qrng+"_")
}

func filterFamilies(families []*dto.MetricFamily, prefix string) []*dto.MetricFamily {
	if prefix == "" {
		return families
	}
	kept := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			kept = append(kept, mf)
		}
	}
	return kept
}
