/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/notargets/meshadapt/adapt"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
	"github.com/notargets/meshadapt/sizefield"
)

// ValidateCmd represents the validate command
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check element validity and layer splits",
	Long: `
Reports the quality of every element and whether each prism and pyramid
has a valid split into tetrahedra. Exits non-zero when any does not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ar := &AdaptRun{}
		ar.InputFile, _ = cmd.Flags().GetString("inputFile")
		ap, err := processAdaptInput(ar)
		if err != nil {
			return err
		}
		m, _, err := ap.LoadMesh()
		if err != nil {
			return err
		}
		f, err := ap.SizeField()
		if err != nil {
			return err
		}
		return RunValidate(m, f, ap.GoodQuality, newLogger())
	},
}

func init() {
	rootCmd.AddCommand(ValidateCmd)
	ValidateCmd.Flags().StringP("inputFile", "I", "", "YAML file naming the mesh")
}

// RunValidate logs the quality and layer safety of m and fails when an
// element is inverted or a layer element cannot be split
func RunValidate(m *mesh.Mesh, f sizefield.SizeField, good float64, logger *slog.Logger) error {
	st := adapt.PrintQuality(m, f, good, logger)
	var unsafe int
	for _, e := range shape.LiveElements(m) {
		switch m.Type(e) {
		case mesh.Prism:
			ok, codes := shape.IsPrismSafe(m, e)
			if !ok {
				unsafe++
				logger.Warn("unsafe prism", "element", e, "valid codes", fmt.Sprintf("%06b", codes>>1))
			}
		case mesh.Pyramid:
			ok, r := shape.IsPyramidSafe(m, e)
			if !ok {
				unsafe++
				logger.Warn("unsafe pyramid", "element", e, "rotation", int(r))
			}
		}
	}
	m.LogStatistics(logger)
	if st.Count > 0 && st.Worst <= 0 {
		return fmt.Errorf("mesh has inverted elements, worst quality %g", st.Worst)
	}
	if unsafe > 0 {
		return fmt.Errorf("%d layer elements have no valid default split: %w", unsafe, adapt.ErrUnsafeLayerElement)
	}
	return nil
}
