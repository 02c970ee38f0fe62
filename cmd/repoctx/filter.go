package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repoctx/internal/filter"
)

func newFilterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "filter [paths...]",
		Short: "Print the paths the configured filter keeps",
		Long: `Apply the path filter to paths from the arguments, or one per line from
stdin when there are none. Kept paths are printed sorted and de-duplicated.

Examples:
  repoctx filter main/src/app.py main/node_modules/x.js
  git ls-files | repoctx filter --config repoctx.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			f, err := filter.New(cfg.Filter)
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						paths = append(paths, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read paths: %w", err)
				}
			}

			for _, p := range f.Select(paths) {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
