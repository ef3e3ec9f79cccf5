// Package dag provides a small directed acyclic graph used to plan filter
// pipelines.
//
// # Overview
//
// Each pipeline stage is a node; an edge runs from the stage that produces an
// array to every stage that consumes it. Nodes keep their insertion order, and
// [DAG.TopologicalSort] uses that order to break ties, so a pipeline declared
// in a valid order runs exactly in declaration order.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "downsample"})
//	g.AddNode(dag.Node{ID: "gaussian"})
//	g.AddEdge(dag.Edge{From: "downsample", To: "gaussian"})
//	order, err := g.TopologicalSort()
//
// [DAG.Validate] reports [ErrGraphHasCycle] when a stage depends on itself
// through other stages.
//
// # Rendering
//
// [ToDOT] writes the graph in Graphviz DOT format; [RenderSVG] lays it out
// with the embedded Graphviz library.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use.
package dag
