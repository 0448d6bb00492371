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
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/meshadapt/InputParameters"
	"github.com/notargets/meshadapt/adapt"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
)

type AdaptRun struct {
	InputFile  string
	OutputFile string
	DebugDir   string
	Verbose    bool
	Uniform    int
}

const exampleInput = `
########################################
Title: "Layered box"
Mesh:
  Dimension: 3
  N: 4
  Layers: 2
  Thickness: 0.02
  Partitions: 4
  Max: [1, 1, 1]
Size:
  Type: uniform # or graded, boundaryLayer, anisotropic
  H: 0.2
MaxIterations: 3
MidBalance: [diffusive]
PostBalance: [graph]
LayerToTets: true
########################################
`

// AdaptCmd represents the adapt command
var AdaptCmd = &cobra.Command{
	Use:   "adapt",
	Short: "Adapt a mesh toward the size field of an input file",
	Long: `
Adapts the mesh described by a YAML input file, or a 4^3 unit cube when no
file is given, and writes the result in native format. Example input:
` + exampleInput,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ar := &AdaptRun{}
		ar.InputFile, _ = cmd.Flags().GetString("inputFile")
		ar.OutputFile, _ = cmd.Flags().GetString("output")
		ar.DebugDir, _ = cmd.Flags().GetString("debugDir")
		ar.Verbose, _ = cmd.Flags().GetBool("verbose")
		ar.Uniform, _ = cmd.Flags().GetInt("uniform")
		ap, err := processAdaptInput(ar)
		if err != nil {
			return
		}
		return RunAdapt(ar, ap)
	},
}

func init() {
	rootCmd.AddCommand(AdaptCmd)
	AdaptCmd.Flags().StringP("inputFile", "I", "", "YAML file for adaptation parameters")
	AdaptCmd.Flags().StringP("output", "o", "adapted.mesh", "native mesh file to write")
	AdaptCmd.Flags().StringP("debugDir", "D", "", "directory for per-phase mesh dumps (verbose only)")
	AdaptCmd.Flags().BoolP("verbose", "v", false, "check, dump and smooth between phases")
	AdaptCmd.Flags().IntP("uniform", "u", 0, "refine every edge this many times instead of adapting")
}

func processAdaptInput(ar *AdaptRun) (ap *InputParameters.AdaptParameters, err error) {
	ap = InputParameters.NewAdaptParameters()
	if len(ar.InputFile) != 0 {
		var data []byte
		if data, err = os.ReadFile(ar.InputFile); err != nil {
			return nil, err
		}
		if err = ap.Parse(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ar.InputFile, err)
		}
	}
	if len(ar.DebugDir) != 0 {
		ap.DebugDir = ar.DebugDir
	}
	ap.Print()
	return
}

func RunAdapt(ar *AdaptRun, ap *InputParameters.AdaptParameters) error {
	logger := newLogger()
	m, model, err := ap.LoadMesh()
	if err != nil {
		return err
	}
	in, err := ap.Input(m, model)
	if err != nil {
		return err
	}
	in.Logger = logger
	if ar.Uniform > 0 {
		err = adapt.RunUniformRefinement(m, model, ar.Uniform, logger)
	} else {
		_, err = adapt.Run(in, ar.Verbose)
	}
	if err != nil {
		if adapt.IsFatal(err) {
			logger.Error("adaptation failed", "err", err)
		}
		return err
	}
	if err = mesh.WriteNativeFile(ar.OutputFile, m, InputParameters.ModelBox(model), shape.Qualities(m, in.Field)); err != nil {
		return err
	}
	logger.Info("wrote mesh", "file", ar.OutputFile)
	return nil
}
