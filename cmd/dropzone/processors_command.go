package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/model"
)

func newProcessorsCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List installed processors and the profiles using them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cc, &dialog.Scripted{})
			if err != nil {
				return err
			}
			defer rt.close()

			if _, err := rt.installManifests(cmd.Context()); err != nil {
				return err
			}

			rows := [][]string{}
			for _, p := range rt.registry.List() {
				profiles := lo.FilterMap(rt.cfg.Profiles, func(pc config.ProfileConfig, _ int) (string, bool) {
					return pc.ID, pc.Processor == p.ID
				})
				kinds := lo.Map(p.Accept.Kinds(), func(k model.ItemKind, _ int) string { return string(k) })
				rows = append(rows, []string{
					p.ID,
					p.Name,
					strings.Join(kinds, ","),
					p.Bulk.String(),
					p.ExpandDirectory.String(),
					dashIfEmpty(strings.Join(p.Dependencies, ",")),
					dashIfEmpty(strings.Join(profiles, ",")),
				})
			}
			fmt.Fprintln(cc.stdout, renderTable(
				[]string{"ID", "Name", "Accepts", "Bulk", "Expand", "Dependencies", "Profiles"},
				rows,
				nil,
			))
			return nil
		},
	}
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
