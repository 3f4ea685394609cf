package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	textFormat = "text"
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{textFormat, jsonFormat, yamlFormat}
)

func outputFlagUsage() string {
	return fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", "))
}

func validateOutput(output string) error {
	if !funk.Contains(legalOutputTypes, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// printStructured writes v as json or yaml.
func printStructured(w io.Writer, output string, v any) error {
	marshalled, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	if output == yamlFormat {
		marshalled, err = yaml.JSONToYAML(marshalled)
		if err != nil {
			return fmt.Errorf("converting json to yaml: %w", err)
		}
	} else {
		marshalled = append(marshalled, '\n')
	}
	_, err = w.Write(marshalled)
	return err
}
