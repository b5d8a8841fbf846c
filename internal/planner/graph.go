package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/sourceplane/flowline/internal/logging"
	"github.com/sourceplane/flowline/internal/model"
)

// NodeKind distinguishes work nodes from artifact nodes.
type NodeKind string

const (
	WorkNode     NodeKind = "work"
	ArtifactNode NodeKind = "artifact"
)

// Node is a vertex of the workflow graph.
type Node struct {
	Key  string
	Kind NodeKind
	// Ref is the blueprint id for work nodes and the path for artifact nodes.
	Ref string
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	From Node
	To   Node
}

// ArtifactLookup supplies artifact declarations collected while blueprints were assembled.
type ArtifactLookup interface {
	Artifact(path string) (model.Artifact, bool)
}

// WorkflowGraph is the dependency DAG of work units and the artifacts they exchange.
// Artifact nodes live in an arena indexed by path so each path has exactly one node.
type WorkflowGraph struct {
	g          graph.Graph[string, Node]
	blueprints map[string]*model.Blueprint
	order      []string

	arena     []model.Artifact
	index     map[string]int
	producers map[string][]string
	consumers map[string][]string

	succ  map[string][]string
	edges []Edge
	seen  map[[2]string]bool
}

func workKey(id string) string       { return "work:" + id }
func artifactKey(path string) string { return "artifact:" + path }

func nodeHash(n Node) string { return n.Key }

// BuildGraph constructs the workflow graph for a set of blueprints. Artifacts
// with several producers are logged as warnings to the context logger.
// It fails on duplicate ids, wait_on references to unknown ids and dependency cycles.
func BuildGraph(ctx context.Context, blueprints []*model.Blueprint, artifacts ArtifactLookup) (*WorkflowGraph, error) {
	wg := &WorkflowGraph{
		g:          graph.New(nodeHash, graph.Directed()),
		blueprints: make(map[string]*model.Blueprint, len(blueprints)),
		index:      make(map[string]int),
		producers:  make(map[string][]string),
		consumers:  make(map[string][]string),
		succ:       make(map[string][]string),
		seen:       make(map[[2]string]bool),
	}

	for _, bp := range blueprints {
		if bp == nil || bp.ID == "" {
			return nil, invalidf("blueprint without id")
		}
		if _, exists := wg.blueprints[bp.ID]; exists {
			return nil, invalidf("duplicate blueprint id %q", bp.ID)
		}
		wg.blueprints[bp.ID] = bp
		wg.order = append(wg.order, bp.ID)
		node := Node{Key: workKey(bp.ID), Kind: WorkNode, Ref: bp.ID}
		if err := wg.g.AddVertex(node, graph.VertexAttribute("shape", "box"), graph.VertexAttribute("label", bp.Label())); err != nil {
			return nil, fmt.Errorf("failed to add work node %s: %w", bp.ID, err)
		}
	}

	for _, id := range wg.order {
		bp := wg.blueprints[id]
		work := Node{Key: workKey(id), Kind: WorkNode, Ref: id}

		for _, in := range bp.Inputs {
			art, err := wg.ensureArtifact(in, artifacts)
			if err != nil {
				return nil, err
			}
			if err := wg.addEdge(art, work); err != nil {
				return nil, err
			}
			wg.consumers[in] = appendUnique(wg.consumers[in], id)
		}
		for _, out := range bp.Outputs {
			art, err := wg.ensureArtifact(out, artifacts)
			if err != nil {
				return nil, err
			}
			if err := wg.addEdge(work, art); err != nil {
				return nil, err
			}
			wg.producers[out] = appendUnique(wg.producers[out], id)
		}
		for _, dep := range bp.WaitOn {
			if _, ok := wg.blueprints[dep]; !ok {
				return nil, invalidf("%s waits on unknown unit %q", id, dep)
			}
			if dep == id {
				return nil, CycleError([]string{id, id})
			}
			if err := wg.addEdge(Node{Key: workKey(dep), Kind: WorkNode, Ref: dep}, work); err != nil {
				return nil, err
			}
		}
	}

	logger := logging.FromContext(ctx)
	for path, ids := range wg.producers {
		if len(ids) > 1 {
			logger.Warn("artifact has more than one producer", "path", path, "producers", strings.Join(ids, ","))
		}
	}

	if err := wg.detectCycles(); err != nil {
		return nil, err
	}
	return wg, nil
}

func (wg *WorkflowGraph) ensureArtifact(path string, artifacts ArtifactLookup) (Node, error) {
	node := Node{Key: artifactKey(path), Kind: ArtifactNode, Ref: path}
	if _, ok := wg.index[path]; ok {
		return node, nil
	}

	art := model.Artifact{Path: path}
	if artifacts != nil {
		if declared, ok := artifacts.Artifact(path); ok {
			art = declared
		}
	}
	wg.index[path] = len(wg.arena)
	wg.arena = append(wg.arena, art)

	if err := wg.g.AddVertex(node, graph.VertexAttribute("shape", "ellipse"), graph.VertexAttribute("label", path)); err != nil {
		return Node{}, fmt.Errorf("failed to add artifact node %s: %w", path, err)
	}
	return node, nil
}

func (wg *WorkflowGraph) addEdge(from, to Node) error {
	k := [2]string{from.Key, to.Key}
	if wg.seen[k] {
		return nil
	}
	if err := wg.g.AddEdge(from.Key, to.Key); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return fmt.Errorf("failed to add edge %s -> %s: %w", from.Key, to.Key, err)
	}
	wg.seen[k] = true
	wg.succ[from.Key] = append(wg.succ[from.Key], to.Key)
	wg.edges = append(wg.edges, Edge{From: from, To: to})
	return nil
}

// detectCycles uses strongly connected components; any component with more than one node is a cycle.
func (wg *WorkflowGraph) detectCycles() error {
	components, err := graph.StronglyConnectedComponents(wg.g)
	if err != nil {
		return fmt.Errorf("failed to compute strongly connected components: %w", err)
	}
	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		return CycleError(wg.cyclePath(comp))
	}
	return nil
}

// cyclePath walks successors inside a component until a node repeats.
func (wg *WorkflowGraph) cyclePath(comp []string) []string {
	members := make(map[string]bool, len(comp))
	start := comp[0]
	for _, k := range comp {
		members[k] = true
		if k < start {
			start = k
		}
	}

	pos := make(map[string]int)
	var trail []string
	cur := start
	for {
		if i, ok := pos[cur]; ok {
			path := append(trail[i:], cur)
			out := make([]string, len(path))
			for j, k := range path {
				out[j] = displayKey(k)
			}
			return out
		}
		pos[cur] = len(trail)
		trail = append(trail, cur)
		next := ""
		for _, s := range wg.succ[cur] {
			if members[s] {
				next = s
				break
			}
		}
		if next == "" {
			return []string{displayKey(start)}
		}
		cur = next
	}
}

func displayKey(key string) string {
	if id, ok := strings.CutPrefix(key, "work:"); ok {
		return id
	}
	return strings.TrimPrefix(key, "artifact:")
}

// WorkIDs returns blueprint ids in the order they were added.
func (wg *WorkflowGraph) WorkIDs() []string {
	return append([]string(nil), wg.order...)
}

// Blueprint returns the blueprint for a work node.
func (wg *WorkflowGraph) Blueprint(id string) (*model.Blueprint, bool) {
	bp, ok := wg.blueprints[id]
	return bp, ok
}

// Artifact returns the artifact node for a path.
func (wg *WorkflowGraph) Artifact(path string) (model.Artifact, bool) {
	i, ok := wg.index[path]
	if !ok {
		return model.Artifact{}, false
	}
	return wg.arena[i], true
}

// Artifacts returns all artifact nodes in first-seen order.
func (wg *WorkflowGraph) Artifacts() []model.Artifact {
	return append([]model.Artifact(nil), wg.arena...)
}

// Producers returns the ids of work nodes with an edge into the artifact.
func (wg *WorkflowGraph) Producers(path string) []string {
	return append([]string(nil), wg.producers[path]...)
}

// Consumers returns the ids of work nodes reading the artifact.
func (wg *WorkflowGraph) Consumers(path string) []string {
	return append([]string(nil), wg.consumers[path]...)
}

// InDegree is the number of producers of an artifact.
func (wg *WorkflowGraph) InDegree(path string) int {
	return len(wg.producers[path])
}

// Prerequisites returns the work ids that must be registered before id:
// producers of its inputs followed by its wait_on targets.
func (wg *WorkflowGraph) Prerequisites(id string) []string {
	bp, ok := wg.blueprints[id]
	if !ok {
		return nil
	}
	var deps []string
	for _, in := range bp.Inputs {
		for _, p := range wg.producers[in] {
			deps = appendUnique(deps, p)
		}
	}
	for _, w := range bp.WaitOn {
		deps = appendUnique(deps, w)
	}
	return deps
}

// Edges returns every edge in insertion order.
func (wg *WorkflowGraph) Edges() []Edge {
	return append([]Edge(nil), wg.edges...)
}

// Order returns the number of nodes in the graph.
func (wg *WorkflowGraph) Order() int {
	return len(wg.order) + len(wg.arena)
}

// TopologicalWorkOrder returns work ids in a stable dependency order.
func (wg *WorkflowGraph) TopologicalWorkOrder() ([]string, error) {
	rank := make(map[string]int, len(wg.order))
	for i, id := range wg.order {
		rank[workKey(id)] = i
	}
	for path, i := range wg.index {
		rank[artifactKey(path)] = len(wg.order) + i
	}
	keys, err := graph.StableTopologicalSort(wg.g, func(a, b string) bool { return rank[a] < rank[b] })
	if err != nil {
		return nil, fmt.Errorf("failed to sort workflow graph: %w", err)
	}
	ids := make([]string, 0, len(wg.order))
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, "work:"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// WriteDOT renders the graph in Graphviz DOT format.
func (wg *WorkflowGraph) WriteDOT(w io.Writer) error {
	return draw.DOT(wg.g, w, draw.GraphAttribute("rankdir", "LR"))
}

type cyNode struct {
	Data cyNodeData `json:"data"`
}

type cyNodeData struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	HaveBlueprint bool   `json:"haveblueprint"`
}

type cyEdge struct {
	Data cyEdgeData `json:"data"`
}

type cyEdgeData struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// JSON renders the graph as a cytoscape elements document.
func (wg *WorkflowGraph) JSON() ([]byte, error) {
	doc := struct {
		Nodes []cyNode `json:"nodes"`
		Edges []cyEdge `json:"edges"`
	}{Nodes: []cyNode{}, Edges: []cyEdge{}}

	for _, id := range wg.order {
		doc.Nodes = append(doc.Nodes, cyNode{Data: cyNodeData{ID: id, Type: string(WorkNode), HaveBlueprint: true}})
	}
	for _, a := range wg.arena {
		doc.Nodes = append(doc.Nodes, cyNode{Data: cyNodeData{ID: a.Path, Type: string(ArtifactNode)}})
	}
	for _, e := range wg.edges {
		doc.Edges = append(doc.Edges, cyEdge{Data: cyEdgeData{Source: e.From.Ref, Target: e.To.Ref}})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
