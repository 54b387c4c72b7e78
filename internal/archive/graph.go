package archive

import (
	"fmt"

	"github.com/dejo1307/edgezip/internal/graph"
	"github.com/dejo1307/edgezip/internal/scan"
	"github.com/dejo1307/edgezip/internal/specifier"
)

// Graph rebuilds the module graph of a decoded archive by scanning every
// stored module again. Modules nothing references become the roots.
func (a *Archive) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, spec := range a.Specifiers() {
		m, _ := a.Module(spec)
		ct, _ := m.Header(HeaderContentType)
		g.AddNode(graph.Node{
			Specifier:   spec,
			Remote:      !specifier.IsLocal(spec),
			ContentType: ct,
			Size:        len(m.Content),
		})

		dialect, script := scan.DialectFor(spec, ct)
		if !script {
			continue
		}
		refs, err := scan.Scan(m.Content, dialect)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", spec, err)
		}
		if _, err := addEdges(g, spec, refs); err != nil {
			return nil, err
		}
	}
	for _, spec := range g.Specifiers() {
		if len(g.Dependents(spec)) == 0 {
			g.AddRoot(spec)
		}
	}
	return g, nil
}
