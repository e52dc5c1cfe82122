package graph

// ClassifyBackEdges returns the set of edges (by index into g.Edges) that
// point to an already-visited node in a BFS from entry — informational
// only, per the glossary's definition of "back edge". The executor treats
// back edges identically to forward edges and does not call this function;
// edge_traversed events carry no back-edge tag.
func ClassifyBackEdges(g GraphSpec, entry string) map[int]bool {
	backEdges := make(map[int]bool)
	visited := map[string]bool{entry: true}
	queue := []string{entry}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for i, e := range g.Edges {
			if e.Source != node {
				continue
			}
			if visited[e.Target] {
				backEdges[i] = true
				continue
			}
			visited[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return backEdges
}
