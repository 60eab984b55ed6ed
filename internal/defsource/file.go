package defsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/fsutil"
	"github.com/vk/botgraph/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of a manifest.
type hclFile struct {
	Graphs []*hclGraph `hcl:"graph,block"`
}

type hclGraph struct {
	ID            string         `hcl:"id,label"`
	Name          string         `hcl:"name,optional"`
	Enabled       *bool          `hcl:"enabled,optional"`
	Triggers      []string       `hcl:"triggers,optional"`
	Structure     string         `hcl:"structure,optional"`
	StructureFile string         `hcl:"structure_file,optional"`
	Variables     []*hclVariable `hcl:"variable,block"`
}

type hclVariable struct {
	Name  string         `hcl:"name,label"`
	Type  string         `hcl:"type"`
	Value hcl.Expression `hcl:"value,optional"`
}

// FileSource reads graph manifests from <root>/<owner>/**/*.hcl. A manifest
// holds one or more blocks of the form:
//
//	graph "greeter" {
//	  name           = "Greeter"
//	  triggers       = ["chat"]
//	  structure_file = "greeter.json"
//
//	  variable "count" {
//	    type  = "number"
//	    value = 0
//	  }
//	}
//
// structure_file is resolved relative to the manifest. An inline
// structure attribute may be used instead.
type FileSource struct {
	root string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{root: dir}
}

// Owners lists the owner directories under the root.
func (s *FileSource) Owners() ([]string, error) {
	owners, err := fsutil.SubDirs(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners in %s: %w", s.root, err)
	}
	return owners, nil
}

// Definitions parses every manifest of the owner. A manifest that fails to
// parse fails the whole call; a structure file that cannot be read leaves
// the definition with an empty structure for the manager to reject.
func (s *FileSource) Definitions(ctx context.Context, ownerID string) ([]Definition, error) {
	logger := ctxlog.FromContext(ctx).With("owner", ownerID)
	dir := filepath.Join(s.root, ownerID)

	files, err := fsutil.FindFiles(dir, ".hcl")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOwner, ownerID)
		}
		return nil, fmt.Errorf("failed to find graph manifests in %s: %w", dir, err)
	}
	if len(files) == 0 {
		logger.Warn("No graph manifests found for owner.", "path", dir)
		return nil, nil
	}

	parser := hclparse.NewParser()
	var defs []Definition
	seen := make(map[string]string)
	for _, file := range files {
		parsed, err := parseManifest(ctx, parser, file)
		if err != nil {
			return nil, err
		}
		for _, d := range parsed {
			if prev, dup := seen[d.ID]; dup {
				return nil, fmt.Errorf("graph %q in %s is already defined in %s", d.ID, file, prev)
			}
			seen[d.ID] = file
			d.OwnerID = ownerID
			defs = append(defs, d)
		}
	}
	logger.Debug("Graph manifests parsed.", "files", len(files), "graphs", len(defs))
	return defs, nil
}

func parseManifest(ctx context.Context, parser *hclparse.Parser, path string) ([]Definition, error) {
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	defs := make([]Definition, 0, len(parsed.Graphs))
	for _, g := range parsed.Graphs {
		d, err := translateGraph(ctx, g, filepath.Dir(path))
		if err != nil {
			return nil, fmt.Errorf("graph %q in %s: %w", g.ID, path, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func translateGraph(ctx context.Context, g *hclGraph, base string) (Definition, error) {
	d := Definition{
		ID:       g.ID,
		Name:     g.Name,
		Enabled:  g.Enabled == nil || *g.Enabled,
		Triggers: g.Triggers,
	}
	if d.Name == "" {
		d.Name = g.ID
	}

	switch {
	case g.Structure != "" && g.StructureFile != "":
		return Definition{}, errors.New("structure and structure_file are mutually exclusive")
	case g.StructureFile != "":
		path := g.StructureFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to read graph structure file.", "graph", g.ID, "path", path, "error", err)
		}
		d.Structure = data
	default:
		d.Structure = []byte(g.Structure)
	}

	for _, v := range g.Variables {
		decl, err := translateVariable(v)
		if err != nil {
			return Definition{}, err
		}
		d.Variables = append(d.Variables, decl)
	}
	return d, nil
}

func translateVariable(v *hclVariable) (graph.Variable, error) {
	decl := graph.Variable{Name: v.Name, Type: graph.VarType(v.Type)}
	switch decl.Type {
	case graph.VarNumber, graph.VarBoolean, graph.VarArray, graph.VarString:
	default:
		return graph.Variable{}, fmt.Errorf("variable %q has unsupported type %q", v.Name, v.Type)
	}
	if v.Value == nil {
		return decl, nil
	}
	val, diags := v.Value.Value(nil)
	if diags.HasErrors() {
		return graph.Variable{}, fmt.Errorf("variable %q: %w", v.Name, diags)
	}
	plain, err := ctyToGo(val)
	if err != nil {
		return graph.Variable{}, fmt.Errorf("variable %q: %w", v.Name, err)
	}
	decl.Value = plain
	return decl, nil
}

// ctyToGo converts a literal manifest value into the plain Go values the
// graph JSON decoder produces.
func ctyToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for k, v := range val.AsValueMap() {
			conv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			conv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
