package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openpa/chartcheck/internal/normalize"
	"github.com/openpa/chartcheck/internal/rules"
	"github.com/openpa/chartcheck/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Normalize and lint a payer policy document without publishing it",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("rules", "", "policy or rule-set JSON file")
	validateCmd.Flags().String("schema", "", "extraction schema JSON file (overrides schema embedded in the document)")
	validateCmd.Flags().Bool("json", false, "emit findings as JSON")
	_ = validateCmd.MarkFlagRequired("rules")
}

func runValidate(cmd *cobra.Command, args []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	schemaPath, _ := cmd.Flags().GetString("schema")
	asJSON, _ := cmd.Flags().GetBool("json")

	raw, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	result, err := normalize.NormalizePolicy(types.RawDocument(raw))
	if err != nil {
		return fmt.Errorf("policy document rejected: %w", err)
	}

	schema := result.Schema
	if schemaPath != "" {
		schema, err = loadSchemaFields(schemaPath)
		if err != nil {
			return err
		}
	}

	issues := rules.Lint(result.Rules, schema)

	if asJSON {
		out := map[string]any{
			"rule_count": len(result.Rules),
			"issues":     issues,
			"warnings":   result.Warnings,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			return err
		}
	} else {
		for _, warning := range result.Warnings {
			fmt.Printf("[NOTE] %s\n", warning)
		}
		for _, issue := range issues {
			fmt.Println(issue.String())
		}
	}

	if rules.HasErrors(issues) {
		return fmt.Errorf("%d lint finding(s), rule set would be rejected on publish", len(issues))
	}
	if !asJSON {
		fmt.Printf("ok: %d rule(s), %d warning(s)\n", len(result.Rules), len(issues)+len(result.Warnings))
	}
	return nil
}

// loadSchemaFields reads an extraction schema file: either a JSON list of
// field names or an object keyed by field.
func loadSchemaFields(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, fmt.Errorf("schema file must be a JSON list of field names or an object keyed by field: %w", err)
	}
	fields := make([]string, 0, len(asObject))
	for field := range asObject {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}
