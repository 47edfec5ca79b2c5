package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/timeline/internal/tree"
)

// ValidationIssue is one problem found in a tree document.
type ValidationIssue struct {
	Code    string `json:"code"`
	Tree    string `json:"tree,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// FileValidation holds the validation result for one tree document.
type FileValidation struct {
	Path   string            `json:"path"`
	Valid  bool              `json:"valid"`
	Root   string            `json:"root,omitempty"`
	Trees  []string          `json:"trees,omitempty"`
	Hash   string            `json:"hash,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationResult holds validation results for every path.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <tree-file|dir>...",
		Short: "Validate tree definitions",
		Long: `Validate YAML or CUE tree definitions without running them.

Reports every structural problem: unknown kinds, missing or misplaced fields,
negative times, undefined references, reference cycles and a missing root.
A directory is loaded as one CUE package.

Exit codes:
  0 - All documents are valid
  1 - One or more documents are invalid
  2 - Command error`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: []FileValidation{}}
	for _, path := range paths {
		fv := validatePath(path)
		formatter.VerboseLog("Validated %s: %d error(s)", path, len(fv.Errors))
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.JSON() {
		if result.Valid {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeInvalidTree, "validation failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	writeValidationText(cmd.OutOrStdout(), result)
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// loadTree loads a tree document from a file or a CUE package directory.
func loadTree(path string) (*tree.Document, error) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return tree.LoadDir(path)
	}
	return tree.LoadFile(path)
}

// validatePath loads and validates one document.
func validatePath(path string) FileValidation {
	fv := FileValidation{Path: path}

	doc, err := loadTree(path)
	if err != nil {
		fv.Errors = append(fv.Errors, issueFromError(err))
		return fv
	}

	fv.Root = doc.Entry()
	fv.Trees = doc.Names()
	for _, err := range tree.Validate(doc) {
		fv.Errors = append(fv.Errors, issueFromError(err))
	}
	if len(fv.Errors) > 0 {
		return fv
	}

	fv.Hash, err = tree.Hash(doc)
	if err != nil {
		fv.Errors = append(fv.Errors, issueFromError(err))
		return fv
	}
	fv.Valid = true
	return fv
}

// issueFromError converts load and validation errors to issues.
func issueFromError(err error) ValidationIssue {
	var ve *tree.ValidationError
	if errors.As(err, &ve) {
		issue := ValidationIssue{Code: ve.Code, Tree: ve.Tree, Path: ve.Path, Message: ve.Message}
		issue.Line, issue.Column = position(ve.Pos)
		return issue
	}

	var le *tree.LoadError
	if errors.As(err, &le) {
		issue := ValidationIssue{Code: le.Code, Message: le.Message}
		issue.Line, issue.Column = position(le.Pos)
		return issue
	}

	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

// position extracts line and column from a CUE position.
func position(pos token.Pos) (int, int) {
	if !pos.IsValid() {
		return 0, 0
	}
	return pos.Line(), pos.Column()
}

func writeValidationText(w io.Writer, result ValidationResult) {
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s (root %s, %d tree(s), hash %s)\n", fv.Path, fv.Root, len(fv.Trees), shortHash(fv.Hash))
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fv.Path)
		for _, issue := range fv.Errors {
			loc := issue.Tree
			if issue.Path != "" {
				loc += "." + issue.Path
			}
			if issue.Line > 0 {
				loc = fmt.Sprintf("%s (line %d)", loc, issue.Line)
			}
			if loc != "" {
				fmt.Fprintf(w, "  [%s] %s: %s\n", issue.Code, loc, issue.Message)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", issue.Code, issue.Message)
			}
		}
	}
}

// shortHash abbreviates a hex hash for text output.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
