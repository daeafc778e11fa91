package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hanko-field/configurator/internal/platform/observability"
	"github.com/hanko-field/configurator/internal/services"
)

var errParityFailed = errors.New("parity check failed")

type parityFile struct {
	Cases []services.ParityCase `yaml:"cases"`
}

func newParityCmd(opts *rootOptions) *cobra.Command {
	var casesPath string
	cmd := &cobra.Command{
		Use:   "parity",
		Short: "Check that preview transforms and print rasters select the same region",
		Long: `Runs the crop parity harness over a YAML list of cases and prints one row
per case. Without --cases the built-in regression suite is used. Exits non-zero
when any case disagrees by more than one pixel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases := services.DefaultParityCases()
			if casesPath != "" {
				loaded, err := loadParityCases(casesPath)
				if err != nil {
					return err
				}
				cases = loaded
			}

			engine := services.NewCropGeometryEngine(services.CropGeometryEngineDeps{
				Logger: observability.Events(opts.log(), "parity"),
			})
			suite := engine.RunParitySuite(cmd.Context(), cases)
			if err := writeParityTable(cmd.OutOrStdout(), suite); err != nil {
				return err
			}
			if suite.Failed > 0 {
				return fmt.Errorf("%w: %d of %d cases", errParityFailed, suite.Failed, len(suite.Reports))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "", "YAML file with a top-level cases list")
	return cmd
}

func loadParityCases(path string) ([]services.ParityCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file parityFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(file.Cases) == 0 {
		return nil, fmt.Errorf("decode %s: no cases", path)
	}
	for i := range file.Cases {
		if file.Cases[i].Name == "" {
			file.Cases[i].Name = fmt.Sprintf("case-%d", i+1)
		}
	}
	return file.Cases, nil
}

func writeParityTable(w io.Writer, suite services.ParitySuiteReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tRESULT\tEXTRACT\tFROM PREVIEW\tΔX\tΔY\tREASON")
	for _, r := range suite.Reports {
		result := "pass"
		if !r.Pass {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Case.Name, result, formatRect(r.Extract), formatRect(r.FromTransform), r.DeltaX, r.DeltaY, r.Reason)
	}
	fmt.Fprintf(tw, "\n%d passed, %d failed\n", suite.Passed, suite.Failed)
	return tw.Flush()
}

func formatRect(r services.Rectangle) string {
	return fmt.Sprintf("%d,%d %dx%d", r.Left, r.Top, r.Width, r.Height)
}
