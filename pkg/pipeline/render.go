package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/dag"
	"github.com/matzehuels/zarrtools/pkg/errors"
)

// Graph output formats.
const (
	GraphFormatDOT = "dot"
	GraphFormatSVG = "svg"
)

// ValidGraphFormats is the set of supported plan graph formats.
var ValidGraphFormats = map[string]bool{
	GraphFormatDOT: true,
	GraphFormatSVG: true,
}

// GraphFormat returns the graph format implied by a file name.
func GraphFormat(path string) (string, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !ValidGraphFormats[format] {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid graph format: %q (must be one of: dot, svg)", format)
	}
	return format, nil
}

// DOT returns the stage graph in Graphviz DOT format. Nodes are labelled
// with the filter name, input and output; edges with the array passed.
func (p *Plan) DOT() string {
	return dag.ToDOT(p.Graph, dag.DOTOptions{Detailed: true})
}

// Render returns the stage graph in the given format.
func (p *Plan) Render(ctx context.Context, format string) ([]byte, error) {
	switch format {
	case GraphFormatDOT:
		return []byte(p.DOT()), nil
	case GraphFormatSVG:
		svg, err := dag.RenderSVG(ctx, p.DOT())
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "render stage graph")
		}
		return svg, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "invalid graph format: %q (must be one of: dot, svg)", format)
}

// WriteGraph renders the stage graph to path, choosing the format by
// extension.
func (p *Plan) WriteGraph(ctx context.Context, path string) error {
	format, err := GraphFormat(path)
	if err != nil {
		return err
	}
	data, err := p.Render(ctx, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write stage graph")
	}
	return nil
}
