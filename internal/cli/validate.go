package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/runview/internal/config"
	"github.com/roach88/runview/internal/script"
)

// ValidationIssue is one problem found in a file.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// FileValidation is the result for one file.
type FileValidation struct {
	Path   string            `json:"path"`
	Kind   string            `json:"kind"` // "script" | "config"
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// Text renders a check mark per file and the issues of invalid ones.
func (r ValidationResult) Text() string {
	var sb strings.Builder
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(&sb, "✓ %s (%s)\n", f.Path, f.Kind)
			continue
		}
		fmt.Fprintf(&sb, "✗ %s (%s)\n", f.Path, f.Kind)
		for _, issue := range f.Issues {
			prefix := ""
			if issue.Line > 0 {
				prefix = fmt.Sprintf("line %d: ", issue.Line)
			}
			if issue.Field != "" {
				prefix += issue.Field + ": "
			}
			fmt.Fprintf(&sb, "  %s: %s%s\n", issue.Code, prefix, issue.Message)
		}
	}
	return sb.String()
}

func (r ValidationResult) issueCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Issues)
	}
	return n
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [script.yaml...]",
		Short: "Validate scripts and configuration without running them",
		Long: `Validate YAML test scripts and, with --config, the configuration file.

Scripts are checked for unknown fields, missing titles and unsupported
outcome/style combinations. The configuration is checked against its
schema, with line numbers for each violation.

Exit codes:
  0 - Every file is valid
  1 - At least one file is invalid
  2 - Command error (nothing to validate)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if len(paths) == 0 && opts.Config == "" {
		return NewExitError(ExitCommandError, "nothing to validate: pass script files or --config")
	}

	result := ValidationResult{Valid: true}
	if opts.Config != "" {
		formatter.VerboseLog("Validating config %s", opts.Config)
		result.add(validateConfigFile(opts.Config))
	}
	for _, path := range paths {
		formatter.VerboseLog("Validating script %s", path)
		result.add(validateScriptFile(path))
	}

	if result.Valid {
		return formatter.Result(result, nil)
	}

	msg := fmt.Sprintf("validation failed with %d error(s)", result.issueCount())
	if err := formatter.Result(result, &CLIError{Code: ErrCodeInvalid, Message: msg}); err != nil {
		return err
	}
	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, msg)
}

func (r *ValidationResult) add(f FileValidation) {
	f.Valid = len(f.Issues) == 0
	if !f.Valid {
		r.Valid = false
	}
	r.Files = append(r.Files, f)
}

func validateConfigFile(path string) FileValidation {
	f := FileValidation{Path: path, Kind: "config"}
	data, err := os.ReadFile(path)
	if err != nil {
		f.Issues = append(f.Issues, ValidationIssue{Message: err.Error(), Code: ErrCodeNotFound})
		return f
	}

	err = config.Validate(path, data)
	var invalid *config.InvalidError
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		for _, v := range invalid.Errors {
			f.Issues = append(f.Issues, ValidationIssue{
				Field:   v.Field,
				Message: v.Message,
				Code:    ErrCodeInvalid,
				Line:    v.Line,
			})
		}
	default:
		f.Issues = append(f.Issues, ValidationIssue{Message: err.Error(), Code: ErrCodeGeneric})
	}
	return f
}

func validateScriptFile(path string) FileValidation {
	f := FileValidation{Path: path, Kind: "script"}
	if _, err := os.Stat(path); err != nil {
		f.Issues = append(f.Issues, ValidationIssue{Message: err.Error(), Code: ErrCodeNotFound})
		return f
	}
	if _, err := script.Load(path); err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, script.ErrInvalid) {
			code = ErrCodeInvalid
		}
		f.Issues = append(f.Issues, ValidationIssue{Message: err.Error(), Code: code})
	}
	return f
}
