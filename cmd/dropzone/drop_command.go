package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/fsx"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

type dropOptions struct {
	texts     []string
	urls      []string
	modifiers string
	yes       bool
}

func newDropCommand(cc *commandContext) *cobra.Command {
	var opts dropOptions

	cmd := &cobra.Command{
		Use:   "drop <profile> [paths...]",
		Short: "Drop files, text or URLs onto a profile and run the resulting operations",
		Long: "Drop files, text or URLs onto a profile and run the resulting operations.\n" +
			"A path of - reads a blob from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(cmd.Context(), cc, args[0], args[1:], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.texts, "text", nil, "drop a text snippet (repeatable)")
	cmd.Flags().StringArrayVar(&opts.urls, "url", nil, "drop a URL (repeatable)")
	cmd.Flags().StringVar(&opts.modifiers, "modifiers", "", "modifier keys held during the drop, e.g. Alt")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "answer every dialog with its default")
	return cmd
}

func runDrop(ctx context.Context, cc *commandContext, profileID string, paths []string, opts dropOptions) error {
	items, err := collectItems(cc.stdin, paths, opts)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("nothing to drop: pass paths, --text or --url")
	}

	var dialogs dialog.Service = &dialog.Scripted{}
	if !opts.yes && interactive(cc) {
		dialogs = dialog.NewTerminal(cc.stdin, cc.stderr)
	}

	rt, err := newRuntime(cc, dialogs)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.installManifests(ctx); err != nil {
		return err
	}
	if err := rt.loadProfiles(); err != nil {
		return err
	}
	p, ok := rt.profile(profileID)
	if !ok {
		return fmt.Errorf("unknown profile %q (available: %s)", profileID, strings.Join(rt.profileIDs(), ", "))
	}

	return rt.runGroup(ctx, func(ctx context.Context) error {
		if isTerminal(cc.stderr) {
			stop := attachProgress(p.Batch(), cc.stderr, p.Title())
			defer stop()
		}

		meta := processor.Meta{Modifiers: opts.modifiers, Action: "drop"}
		if err := p.DropItems(ctx, items, meta); err != nil {
			return fmt.Errorf("drop onto %s: %w", profileID, err)
		}
		if err := rt.pool.WaitIdle(ctx); err != nil {
			return err
		}

		if standby, err := rt.pool.StandbyJSON(); err == nil {
			rt.logger.Debugf("workers: %s", standby)
		}
		return printOperations(cc.stdout, rt.operations())
	})
}

func collectItems(stdin io.Reader, paths []string, opts dropOptions) ([]model.Item, error) {
	var items []model.Item
	var fsPaths []string
	for _, path := range paths {
		if path != "-" {
			fsPaths = append(fsPaths, path)
			continue
		}
		contents, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		items = append(items, model.BlobItem(contents, ""))
	}

	fromFS, err := fsx.ItemsFromPaths(fsPaths)
	if err != nil {
		return nil, err
	}
	items = append(items, fromFS...)
	for _, t := range opts.texts {
		items = append(items, model.StringItem(t, ""))
	}
	for _, u := range opts.urls {
		items = append(items, model.URLItem(u))
	}
	return items, nil
}

func printOperations(w io.Writer, ops []*model.Operation) error {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations were created.")
		return nil
	}

	failed := 0
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		state, opErr := op.State()
		detail := op.Result()
		if opErr != nil {
			failed++
			detail = opErr.Error()
		}
		inputs := op.Payload().Inputs
		size := lo.SumBy(inputs, func(it model.Item) int64 { return max(it.Size, 0) })
		rows = append(rows, []string{
			op.Title(),
			string(state),
			fmt.Sprintf("%d (%s)", len(inputs), humanize.Bytes(uint64(size))),
			op.Duration().Round(time.Millisecond).String(),
			dashIfEmpty(detail),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Operation", "State", "Inputs", "Took", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))

	if failed > 0 {
		return fmt.Errorf("%d of %d operations failed", failed, len(ops))
	}
	return nil
}
