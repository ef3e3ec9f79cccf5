package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/zarrtools/pkg/dag"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/filter"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Opener opens the store addressed by a URI.
type Opener func(ctx context.Context, uri string) (storage.Store, error)

// PlannedStage is a stage with its arrays resolved and created.
type PlannedStage struct {
	// Index is the position of the stage in the run configuration.
	Index  int
	Stage  Stage
	Filter filter.Filter

	// Input and Output are store URIs.
	Input  string
	Output string
	// Overwrite is set when Output existed before the run.
	Overwrite bool

	InputArray  *zarr.Array
	OutputArray *zarr.Array

	producer *PlannedStage
}

// ID is the stage's node ID in the plan graph.
func (s *PlannedStage) ID() string { return stageName(s.Index, s.Stage) }

// Summary describes the stage: its arguments, output encoding and arrays.
// The index is included when numbered is set.
func (s *PlannedStage) Summary(numbered bool) string {
	var b strings.Builder
	if numbered {
		fmt.Fprintf(&b, "%d ", s.Index)
	}
	b.WriteString(s.Stage.Filter)
	args := "{}"
	if a, err := filter.ParseArgs(s.Stage.Filter, s.Stage.Args); err == nil {
		if raw, err := json.Marshal(a); err == nil {
			args = string(raw)
		}
	}
	encode, _ := json.Marshal(s.Stage.Encoding)
	fmt.Fprintf(&b, "\n\targs:   %s", args)
	fmt.Fprintf(&b, "\n\tencode: %s", encode)
	fmt.Fprintf(&b, "\n\tinput:  %s", describeArray(s.InputArray, s.Input))
	fmt.Fprintf(&b, "\n\toutput: %s", describeArray(s.OutputArray, s.Output))
	if s.Overwrite {
		b.WriteString(" (overwrite)")
	}
	return b.String()
}

func describeArray(a *zarr.Array, path string) string {
	if a == nil {
		return path
	}
	shape, _ := json.Marshal(a.Shape())
	return fmt.Sprintf("%s %s %s", a.DataType(), shape, path)
}

// tempArray tracks a temporary array and the stages still to read it.
type tempArray struct {
	name      string
	uri       string
	consumers int
	deleted   bool
}

// Plan is a resolved pipeline with its output arrays created.
type Plan struct {
	// Stages are in execution order.
	Stages []*PlannedStage
	// Graph has one node per stage and an edge per array passed between
	// stages.
	Graph *dag.DAG

	temps  map[string]*tempArray
	stores map[string]storage.Store
	open   Opener
}

// resolve maps stage paths to URIs, allocating temporary arrays, and orders
// the stages. It performs no I/O.
func resolve(opts *Options) (*Plan, error) {
	p := &Plan{
		Graph:  dag.New(dag.Metadata{"stages": len(opts.Stages)}),
		temps:  make(map[string]*tempArray),
		stores: make(map[string]storage.Store),
	}
	named := make(map[string]string)
	temp := func(name string) string {
		if uri, ok := named[name]; ok && name != "" {
			return uri
		}
		uri := tempURI(opts.TempDir)
		p.temps[uri] = &tempArray{name: name, uri: uri}
		if name != "" {
			named[name] = uri
		}
		return uri
	}

	stages := make([]*PlannedStage, len(opts.Stages))
	byID := make(map[string]*PlannedStage, len(stages))
	producers := make(map[string]*PlannedStage)
	var prev string
	for i, s := range opts.Stages {
		ps := &PlannedStage{Index: i, Stage: s}
		switch {
		case i == 0 && (s.Input == "" || IsTemp(s.Input)):
			return nil, errors.New(errors.ErrCodeInvalidConfig, "the first filter must have a valid input path")
		case s.Input == "":
			ps.Input = prev
		case IsTemp(s.Input):
			ps.Input = temp(s.Input)
		default:
			ps.Input = s.Input
		}
		switch {
		case s.Output == "":
			ps.Output = temp("")
		case IsTemp(s.Output):
			ps.Output = temp(s.Output)
		default:
			ps.Output = s.Output
		}
		if ps.Input == ps.Output {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "stage %d reads and writes %s", i, displayPath(s.Input))
		}
		if other, ok := producers[ps.Output]; ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "stages %d and %d both write %s", other.Index, i, displayPath(s.Output))
		}
		producers[ps.Output] = ps
		prev = ps.Output
		stages[i] = ps
		byID[ps.ID()] = ps

		if err := p.Graph.AddNode(dag.Node{
			ID:    ps.ID(),
			Label: s.Filter,
			Meta:  dag.Metadata{"input": displayPath(s.Input), "output": displayPath(s.Output)},
		}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "build stage graph")
		}
	}

	for _, ps := range stages {
		producer, ok := producers[ps.Input]
		if !ok {
			if t, isTemp := p.temps[ps.Input]; isTemp {
				return nil, errors.New(errors.ErrCodeInvalidConfig, "temporary array %s is read by stage %d but never written", t.name, ps.Index)
			}
			continue
		}
		ps.producer = producer
		if t, ok := p.temps[ps.Input]; ok {
			t.consumers++
		}
		label := displayPath(ps.Stage.Input)
		if err := p.Graph.AddEdge(dag.Edge{From: producer.ID(), To: ps.ID(), Meta: dag.Metadata{"label": label}}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "build stage graph")
		}
	}

	order, err := p.Graph.TopologicalSort()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid pipeline")
	}
	for _, id := range order {
		p.Stages = append(p.Stages, byID[id])
	}
	return p, nil
}

// displayPath is the path as written, or "$" for an anonymous temporary.
func displayPath(written string) string {
	if written == "" {
		return TempPrefix
	}
	return written
}

func tempURI(root string) string {
	name := uuid.NewString() + ".zarr"
	if strings.Contains(root, "://") {
		return strings.TrimSuffix(root, "/") + "/" + name
	}
	return filepath.Join(root, name)
}

// store opens uri once per plan.
func (p *Plan) store(ctx context.Context, uri string) (storage.Store, error) {
	if s, ok := p.stores[uri]; ok {
		return s, nil
	}
	s, err := p.open(ctx, uri)
	if err != nil {
		return nil, err
	}
	p.stores[uri] = s
	return s, nil
}

// create opens every input and creates every output array. Output metadata
// is stored while planning so that each output can be checked against the
// stage reading it, and erased again before returning.
func (p *Plan) create(ctx context.Context, opts *Options) error {
	for _, ps := range p.Stages {
		if _, isTemp := p.temps[ps.Output]; isTemp {
			continue
		}
		s, err := p.store(ctx, ps.Output)
		if err != nil {
			return err
		}
		exists, err := storage.Exists(ctx, s, "")
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "check output %s", ps.Output)
		}
		if exists && opts.Exists == ExistsExit {
			return errors.New(errors.ErrCodeOutputExists, "Output exists, exiting")
		}
		ps.Overwrite = exists
	}

	for _, ps := range p.Stages {
		if err := p.createStage(ctx, ps); err != nil {
			_ = p.erasePlanned(ctx)
			return wrap(err, "stage %s", ps.ID())
		}
		fmt.Fprintln(opts.Summary, ps.Summary(len(p.Stages) > 1))
		if t, ok := p.temps[ps.Output]; ok && t.consumers == 0 {
			opts.Logger.Warn("stage output is never read", "stage", ps.ID(), "output", ps.Output)
		}
	}
	return p.erasePlanned(ctx)
}

// erasePlanned removes the metadata stored for every created output.
func (p *Plan) erasePlanned(ctx context.Context) error {
	for _, ps := range p.Stages {
		if ps.OutputArray == nil {
			continue
		}
		if err := ps.OutputArray.EraseMetadata(ctx); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "erase planned metadata of %s", ps.Output)
		}
	}
	return nil
}

func (p *Plan) createStage(ctx context.Context, ps *PlannedStage) error {
	f, err := filter.New(ps.Stage.Filter, ps.Stage.Args, ps.Stage.ChunkLimit)
	if err != nil {
		return err
	}
	ps.Filter = f

	if ps.producer != nil {
		ps.InputArray = ps.producer.OutputArray
	} else {
		in, err := p.store(ctx, ps.Input)
		if err != nil {
			return err
		}
		if ps.InputArray, err = zarr.OpenArray(ctx, in, "/"); err != nil {
			return wrap(err, "open input %s", ps.Input)
		}
	}

	out, err := p.store(ctx, ps.Output)
	if err != nil {
		return err
	}
	if err := out.DeletePrefix(ctx, ""); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "erase output %s", ps.Output)
	}
	b, err := filter.OutputBuilder(f, ps.InputArray, ps.Stage.Encoding)
	if err != nil {
		return err
	}
	if ps.OutputArray, err = b.Build(out, "/"); err != nil {
		return err
	}
	if err := ps.OutputArray.StoreMetadata(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "store metadata of %s", ps.Output)
	}
	return f.IsCompatible(ps.InputArray.ChunkRep(), ps.OutputArray.ChunkRep())
}

// release records that ps has finished reading its input and deletes the
// input when it is a temporary array with no readers left.
func (p *Plan) release(ctx context.Context, ps *PlannedStage) error {
	t, ok := p.temps[ps.Input]
	if !ok {
		return nil
	}
	t.consumers--
	if t.consumers > 0 {
		return nil
	}
	return p.deleteTemp(ctx, t)
}

func (p *Plan) deleteTemp(ctx context.Context, t *tempArray) error {
	if t.deleted {
		return nil
	}
	t.deleted = true
	s, ok := p.stores[t.uri]
	if !ok {
		return nil
	}
	delete(p.stores, t.uri)
	err := s.DeletePrefix(ctx, "")
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	if !strings.Contains(t.uri, "://") {
		if rerr := os.RemoveAll(t.uri); err == nil {
			err = rerr
		}
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "delete temporary array %s", t.uri)
	}
	return nil
}

// Close deletes every remaining temporary array and closes all stores.
func (p *Plan) Close(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var first error
	for _, t := range p.temps {
		if err := p.deleteTemp(ctx, t); err != nil && first == nil {
			first = err
		}
	}
	for uri, s := range p.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.stores, uri)
	}
	return first
}

// wrap adds context to err, keeping its code.
func wrap(err error, format string, args ...any) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, err, format, args...)
}
