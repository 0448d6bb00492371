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

	"github.com/notargets/meshadapt/InputParameters"
	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/mesh"
)

// BalanceCmd represents the balance command
var BalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Diffuse a partitioned mesh toward an even memory load",
	Long: `
Weighs every element by the storage it carries and runs the centroid
diffuser on the mesh of the input file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ar := &AdaptRun{}
		ar.InputFile, _ = cmd.Flags().GetString("inputFile")
		ar.OutputFile, _ = cmd.Flags().GetString("output")
		step, _ := cmd.Flags().GetFloat64("step")
		tolerance, _ := cmd.Flags().GetFloat64("tolerance")
		ap, err := processAdaptInput(ar)
		if err != nil {
			return err
		}
		m, model, err := ap.LoadMesh()
		if err != nil {
			return err
		}
		if err = RunBalance(m, step, tolerance, newLogger()); err != nil {
			return err
		}
		if len(ar.OutputFile) == 0 {
			return nil
		}
		return mesh.WriteNativeFile(ar.OutputFile, m, InputParameters.ModelBox(model), nil)
	},
}

func init() {
	rootCmd.AddCommand(BalanceCmd)
	BalanceCmd.Flags().StringP("inputFile", "I", "", "YAML file naming the mesh and its partition count")
	BalanceCmd.Flags().StringP("output", "o", "", "native mesh file to write")
	BalanceCmd.Flags().Float64P("step", "s", balance.DefaultDiffusionStep, "fraction of the load difference moved per sweep")
	BalanceCmd.Flags().Float64P("tolerance", "t", 1.10, "maximum imbalance accepted")
}

// RunBalance weighs m by memory and diffuses it until the imbalance is at
// most tolerance
func RunBalance(m *mesh.Mesh, step, tolerance float64, logger *slog.Logger) (err error) {
	if m.NumPartitions < 2 {
		return fmt.Errorf("mesh has %d partitions, nothing to balance", m.NumPartitions)
	}
	tag, err := balance.WeighByMemory(m)
	if err != nil {
		return err
	}
	defer func() {
		m.RemoveTag(tag, m.Dimension())
		if derr := m.DestroyTag(tag); derr != nil && err == nil {
			err = derr
		}
	}()
	weight := balance.TagWeight(m, tag)
	_, before := m.AnalyzePartition(weight, logger)
	d := &balance.CentroidDiffuser{Mesh: m, Step: step, Logger: logger}
	if err = d.Balance(tag, tolerance); err != nil {
		return err
	}
	_, after := m.AnalyzePartition(weight, logger)
	logger.Info("balanced", "before", before, "after", after, "tolerance", tolerance)
	return nil
}
