package tree

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError reports a document that could not be read or parsed.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeNotFound    = "E001" // Path not found
	ErrCodeParseFailed = "E002" // YAML or CUE syntax error
	ErrCodeBuildFailed = "E003" // CUE evaluation failed
	ErrCodeNoTrees     = "E004" // Document defines no trees
	ErrCodeBadFormat   = "E005" // Unknown file extension
)

// IsLoadError reports whether err is a LoadError with the given code.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// ParseYAML parses a YAML tree document.
// Unknown fields are rejected so that typos surface as errors.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	if len(doc.Trees) == 0 {
		return nil, &LoadError{Code: ErrCodeNoTrees, Message: "document defines no trees"}
	}
	return &doc, nil
}

// ParseCUE parses a single CUE source file.
func ParseCUE(filename string, src []byte) (*Document, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, err)
	}
	return decodeCUE(value)
}

// LoadFile reads a tree document from a .yaml, .yml or .cue file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var doc *Document
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		doc, err = ParseYAML(data)
	case ".cue":
		doc, err = ParseCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeBadFormat, Message: fmt.Sprintf("unsupported tree file: %s", path)}
	}
	if err != nil {
		return nil, err
	}

	doc.Source = path
	return doc, nil
}

// LoadDir loads every CUE file in dir as one package and decodes its trees.
func LoadDir(dir string) (*Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("tree directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, err)
	}

	doc, err := decodeCUE(value)
	if err != nil {
		return nil, err
	}
	doc.Source = dir
	return doc, nil
}

// decodeCUE extracts the root field and the tree struct of a CUE value.
func decodeCUE(value cue.Value) (*Document, error) {
	doc := &Document{
		Trees:     make(map[string]Node),
		positions: make(map[string]token.Pos),
	}

	if rootVal := value.LookupPath(cue.ParsePath("root")); rootVal.Exists() {
		root, err := rootVal.String()
		if err != nil {
			return nil, cueLoadError(ErrCodeBuildFailed, err)
		}
		doc.Root = root
	}

	treesVal := value.LookupPath(cue.ParsePath("tree"))
	if !treesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoTrees, Message: "document defines no trees", Pos: value.Pos()}
	}

	iter, err := treesVal.Fields()
	if err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, err)
	}
	for iter.Next() {
		name := iter.Label()
		var node Node
		if err := iter.Value().Decode(&node); err != nil {
			return nil, cueLoadError(ErrCodeBuildFailed, err)
		}
		doc.Trees[name] = node
		doc.positions[name] = iter.Value().Pos()
	}

	if len(doc.Trees) == 0 {
		return nil, &LoadError{Code: ErrCodeNoTrees, Message: "document defines no trees", Pos: treesVal.Pos()}
	}
	return doc, nil
}

// cueLoadError extracts position info from CUE errors.
func cueLoadError(code string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
