package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/fixture"
)

func newSeedCommand(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create projects, members, statuses and tasks from a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("open fixture: %w", err)
			}
			defer f.Close()
			doc, err := fixture.Decode(f)
			if err != nil {
				return err
			}

			env, err := openRuntime(flags, "seed", stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			env.logger.Info("command flow start", "command", "seed", "file", filePath, "projects", len(doc.Projects))
			res, err := fixture.Apply(cmd.Context(), env.svc, doc)
			if err != nil {
				env.logger.Error("command flow failed", "command", "seed", "err", err)
				return fmt.Errorf("apply fixture: %w", err)
			}
			for _, p := range doc.Projects {
				_, _ = fmt.Fprintf(stdout, "%s\t%s\n", p.Key, res.ProjectIDs[strings.TrimSpace(p.Key)])
			}
			env.logger.Info("command flow complete", "command", "seed", "tasks", res.Tasks, "comments", res.Comments)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "fixture YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCommand(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var asUser, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the projects a user can view as a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(flags, "export", stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			doc, err := fixture.Export(app.WithActor(cmd.Context(), asUser), env.svc)
			if err != nil {
				return fmt.Errorf("export fixture: %w", err)
			}
			if outPath == "-" {
				return fixture.Encode(stdout, doc)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create export output dir: %w", err)
			}
			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := fixture.Encode(out, doc); err != nil {
				_ = out.Close()
				return err
			}
			env.logger.Info("command flow complete", "command", "export", "projects", len(doc.Projects), "out", outPath)
			return out.Close()
		},
	}
	cmd.Flags().StringVar(&asUser, "as", "", "user whose view is exported")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newStatusesCommand(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var projectID, asUser string
	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "List the ordered workflow statuses of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(flags, "statuses", stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			statuses, err := env.svc.ListStatuses(app.WithActor(cmd.Context(), asUser), projectID)
			if err != nil {
				return fmt.Errorf("list statuses: %w", err)
			}
			var table strings.Builder
			tw := tabwriter.NewWriter(&table, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ORDER\tLABEL\tCOLOR\tFLAGS\tID\t")
			for _, st := range statuses {
				// The swatch stays in the last column so escape codes do not skew alignment.
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", st.Order, st.Label, st.Color, flagSummary(st.Flags), st.ID, renderSwatch(st.Color, "  "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = lipgloss.Fprint(stdout, table.String())
			return err
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&asUser, "as", "", "user id the listing is authorized as")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
