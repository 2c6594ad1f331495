package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/policy"
)

var (
	flagEnforcePolicy string
	flagEnforceData   string

	enforceCmd = &cobra.Command{
		Use:   "enforce",
		Short: "Enforce one policy against a record from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnforce(cmd)
		},
	}
)

func init() {
	enforceCmd.Flags().StringVar(&flagEnforcePolicy, "policy", "", "Policy id to enforce (required)")
	enforceCmd.Flags().StringVar(&flagEnforceData, "data", "", "Path to JSON record (required)")
	_ = enforceCmd.MarkFlagRequired("policy")
	_ = enforceCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(enforceCmd)
}

func runEnforce(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(flagEnforceData) // #nosec G304 -- path is intentional user input
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}

	if err := os.MkdirAll(cfg.AuditDir, 0750); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
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

	results, err := engine.Enforce(ctx, flagEnforcePolicy, record, nil)
	if err != nil && !errors.Is(err, policy.ErrAuditWrite) {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
