package patchrepo

import (
	"sort"
	"strings"
	"text/template"
)

type dotEdge struct {
	Dependent string
	Parent    string
	Files     []string
}

var dotFuncs = template.FuncMap{
	"join": func(items []string, sep string) string { return strings.Join(items, sep) },
}

var dotTmpl = template.Must(template.New("dot").Funcs(dotFuncs).Parse(`digraph patches {
{{- range . }}
	"{{ .Dependent }}" -> "{{ .Parent }}"; // {{ join .Files ", " }}
{{- end }}
}
`))

// renderDotGraph turns a (dependent, parent) -> files dependency map into
// a deterministic DOT digraph: edges sorted by dependent then parent, and
// each edge's file set sorted.
func renderDotGraph(deps map[[2]string]map[string]bool) (string, error) {
	edges := make([]dotEdge, 0, len(deps))
	for key, fileSet := range deps {
		files := make([]string, 0, len(fileSet))
		for f := range fileSet {
			files = append(files, f)
		}
		sort.Strings(files)
		edges = append(edges, dotEdge{Dependent: key[0], Parent: key[1], Files: files})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Dependent != edges[j].Dependent {
			return edges[i].Dependent < edges[j].Dependent
		}
		return edges[i].Parent < edges[j].Parent
	})

	var buf strings.Builder
	if err := dotTmpl.Execute(&buf, edges); err != nil {
		return "", err
	}
	return buf.String(), nil
}
