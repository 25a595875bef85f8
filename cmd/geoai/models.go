package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ifaistartup/go-geoai"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List and manage the models of the inference server",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := newPool()
		if err != nil {
			return err
		}
		defer pool.Close()

		index, err := pool.Index(cmd.Context())
		if err != nil {
			return err
		}

		configured := make(map[string]geoai.ModelInfo)
		infos, err := cfg.ModelInfos()
		if err != nil {
			return err
		}
		for _, m := range infos {
			configured[m.Name] = m
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tTYPE\tTILE\tSCALE\tCLASSES")

		for _, e := range index {
			m, ok := configured[e.Name]
			if !ok {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", e.Name, e.State)
				continue
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%d\n", e.Name, e.State, m.Type, m.TileSize,
				m.ScaleFactor, len(m.EffectiveClassNames()))
		}

		return w.Flush()
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <model>...",
	Short: "Load models into the inference server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return modelRequest(args, func(pool *geoai.Pool, name string) error {
			return pool.Load(cmd.Context(), name)
		})
	},
}

var unloadCmd = &cobra.Command{
	Use:   "unload <model>...",
	Short: "Unload models from the inference server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return modelRequest(args, func(pool *geoai.Pool, name string) error {
			return pool.Unload(cmd.Context(), name)
		})
	},
}

func modelRequest(names []string, fn func(pool *geoai.Pool, name string) error) error {

	pool, err := newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	for _, name := range names {
		if err := fn(pool, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func init() {
	modelsCmd.AddCommand(loadCmd, unloadCmd)
	rootCmd.AddCommand(modelsCmd)
}
