package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/dashboard"
	"github.com/yairfalse/valvo/policy"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the compliance dashboard summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	auditLog, err := audit.Open(cfg.AuditDir)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	engine := policy.NewEngine(auditLog)
	if _, err := policy.NewLoader(cfg.TemplateDir, engine).LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load policy templates: %w", err)
	}

	summary, err := dashboard.NewAggregator(auditLog, engine, nil).Summarize(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
