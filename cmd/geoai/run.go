package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ifaistartup/go-geoai/change"
	"github.com/ifaistartup/go-geoai/pipeline"
	"github.com/spf13/cobra"
)

var aerialCmd = &cobra.Command{
	Use:   "aerial <image>...",
	Short: "Detect objects on georeferenced aerial or satellite images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(func(r *pipeline.Runner) error {
			for _, path := range args {
				res, err := r.Aerial(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				fmt.Printf("%s: %d objects, centre %.6f %.6f -> %s\n",
					path, len(res.Features), res.Center[0], res.Center[1], res.Output)
			}

			return nil
		})
	},
}

var panoramaCmd = &cobra.Command{
	Use:   "panorama <root>",
	Short: "Localize the objects seen on 360° scenes in their point clouds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(func(r *pipeline.Runner) error {
			res, err := r.Panorama(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d objects in %s -> %s\n", args[0], len(res.Features), res.CRS, res.Output)

			return nil
		})
	},
}

var (
	compareClasses []string
	compareName    string
)

var compareCmd = &cobra.Command{
	Use:   "compare <old> <new>",
	Short: "Compare the layers of two runs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := compareName
		if name == "" {
			name = filepath.Base(filepath.Clean(args[0])) + "_" + filepath.Base(filepath.Clean(args[1]))
		}

		return withRunner(func(r *pipeline.Runner) error {
			res, err := r.Compare(cmd.Context(), args[0], args[1], compareClasses, name)
			if err != nil {
				return err
			}

			for _, cr := range res.Results {
				counts := make([]string, 0, len(cr.Buckets))
				for _, s := range change.Statuses {
					counts = append(counts, fmt.Sprintf("%s %d", s, len(cr.Buckets[s])))
				}

				fmt.Printf("%-14s %s\n", cr.Class, strings.Join(counts, ", "))
			}

			fmt.Printf("-> %s\n", res.Output)

			return nil
		})
	},
}

var mergeName string

var mergeCmd = &cobra.Command{
	Use:   "merge <run>...",
	Short: "Merge aerial runs of adjacent images",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(func(r *pipeline.Runner) error {
			out, err := r.Merge(cmd.Context(), args, mergeName)
			if err != nil {
				return err
			}

			fmt.Printf("merged %d runs -> %s\n", len(args), out)

			return nil
		})
	},
}

func init() {
	compareCmd.Flags().StringSliceVar(&compareClasses, "class", nil, "Classes to compare, all layers found when empty")
	compareCmd.Flags().StringVar(&compareName, "name", "", "Name of the result")
	mergeCmd.Flags().StringVar(&mergeName, "name", "merged", "Name of the result")

	rootCmd.AddCommand(aerialCmd, panoramaCmd, compareCmd, mergeCmd)
}
