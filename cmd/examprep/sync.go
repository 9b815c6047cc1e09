package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"import"},
	Short:   "Import questions from every source",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.importer.RunSync(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(report.Sources) == 0 {
			fmt.Fprintln(out, "No sources configured. Add one with: examprep source add <path/or/url.git>")
			return nil
		}
		var failed int
		for _, s := range report.Sources {
			if s.Error != "" {
				failed++
				fmt.Fprintf(out, "%s: failed: %s\n", s.Path, s.Error)
				continue
			}
			fmt.Fprintf(out, "%s: %d questions, %d deactivated, %d problems\n", s.Path, s.Imported, s.Deactivated, len(s.Problems))
			for _, p := range s.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sources failed to sync", failed, len(report.Sources))
		}
		return nil
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List topics with active questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		topics, err := a.db.Questions().ListTopics(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range topics {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", t.ID, t.QuestionCount)
		}
		return nil
	},
}
