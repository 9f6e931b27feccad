package ingestion

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/Benny93/kin-go/internal/graph"
)

// communitySeed fixes the visiting order so repeated runs agree.
const communitySeed = 1

// DetectCommunities groups characters with a Louvain-style modularity pass
// over the related edges, weighted by edge weight. Previous community nodes
// are replaced. Communities of a single character and the unresolved node
// get no community. Returns the number of communities created.
func DetectCommunities(g *graph.Graph) int {
	g.RemoveNodesByLabel(graph.NodeCommunity)

	members := communityCandidates(g)
	for _, n := range g.GetNodesByLabel(graph.NodeCharacter) {
		n.Community = -1
	}
	if len(members) == 0 {
		return 0
	}

	matrix, indexNode := buildAdjacencyMatrix(g, members)
	assigned := assignCommunities(matrix, rand.New(rand.NewSource(communitySeed)))

	groups := make(map[int][]*graph.GraphNode)
	for i, comm := range assigned {
		groups[comm] = append(groups[comm], indexNode[i])
	}

	var ordered [][]*graph.GraphNode
	for _, group := range groups {
		if len(group) > 1 {
			ordered = append(ordered, group)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i][0].ID < ordered[j][0].ID
	})

	for idx, group := range ordered {
		communityID := graph.GenerateID(graph.NodeCommunity, fmt.Sprint(idx))
		ids := make([]string, len(group))
		for i, n := range group {
			ids[i] = n.QID
		}
		g.AddNode(&graph.GraphNode{
			ID:        communityID,
			Label:     graph.NodeCommunity,
			Name:      generateCommunityLabel(group),
			Community: idx,
			Properties: map[string]any{
				"member_count": len(group),
				"members":      ids,
			},
		})

		for _, n := range group {
			n.Community = idx
			g.AddRelationship(&graph.GraphRelationship{
				ID:     fmt.Sprintf("member:%s:%s", n.ID, communityID),
				Type:   graph.RelMemberOf,
				Source: n.ID,
				Target: communityID,
			})
		}
	}
	return len(ordered)
}

// communityCandidates returns the resolved characters, sorted by ID.
func communityCandidates(g *graph.Graph) []*graph.GraphNode {
	var out []*graph.GraphNode
	for _, n := range g.GetNodesByLabel(graph.NodeCharacter) {
		if !n.Unresolved {
			out = append(out, n)
		}
	}
	return out
}

// buildAdjacencyMatrix builds a symmetric weight matrix over nodes.
func buildAdjacencyMatrix(g *graph.Graph, nodes []*graph.GraphNode) ([][]float64, []*graph.GraphNode) {
	n := len(nodes)
	nodeIndex := make(map[string]int, n)
	for i, node := range nodes {
		nodeIndex[node.ID] = i
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	for _, rel := range g.GetRelationshipsByType(graph.RelRelated) {
		src, okS := nodeIndex[rel.Source]
		tgt, okT := nodeIndex[rel.Target]
		if !okS || !okT || src == tgt {
			continue
		}
		w := float64(rel.Weight)
		if w <= 0 {
			w = 1
		}
		matrix[src][tgt] += w
		matrix[tgt][src] += w
	}
	return matrix, nodes
}

// assignCommunities assigns communities to nodes using a simplified Louvain
// algorithm. Index i of the result is the community of node i; communities
// are numbered consecutively in order of first appearance.
func assignCommunities(adjMatrix [][]float64, rng *rand.Rand) []int {
	n := len(adjMatrix)
	if n == 0 {
		return []int{}
	}
	if n == 1 {
		return []int{0}
	}

	communities := make([]int, n)
	for i := range communities {
		communities[i] = i
	}

	var totalWeight float64
	degrees := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			totalWeight += adjMatrix[i][j]
			degrees[i] += adjMatrix[i][j]
		}
	}
	if totalWeight == 0 {
		return communities
	}

	improved := true
	const maxIterations = 100
	for iterations := 0; improved && iterations < maxIterations; iterations++ {
		improved = false

		for _, node := range rng.Perm(n) {
			current := communities[node]
			bestComm := current
			bestGain := calculateModularityGain(node, current, communities, adjMatrix, degrees, totalWeight)

			neighborComms := make(map[int]bool)
			for j := 0; j < n; j++ {
				if adjMatrix[node][j] > 0 {
					neighborComms[communities[j]] = true
				}
			}
			candidates := make([]int, 0, len(neighborComms))
			for comm := range neighborComms {
				candidates = append(candidates, comm)
			}
			sort.Ints(candidates)

			for _, comm := range candidates {
				if comm == current {
					continue
				}
				gain := calculateModularityGain(node, comm, communities, adjMatrix, degrees, totalWeight)
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}

			if bestComm != current {
				communities[node] = bestComm
				improved = true
			}
		}
	}

	renumber := make(map[int]int)
	for i := range communities {
		if _, ok := renumber[communities[i]]; !ok {
			renumber[communities[i]] = len(renumber)
		}
		communities[i] = renumber[communities[i]]
	}
	return communities
}

// calculateModularityGain calculates the modularity gain of placing a node
// in a community.
func calculateModularityGain(node, comm int, communities []int, adjMatrix [][]float64, degrees []float64, totalWeight float64) float64 {
	var sigmaIn, sigmaTot float64
	for j := range communities {
		if communities[j] == comm && j != node {
			sigmaIn += adjMatrix[node][j]
			sigmaTot += degrees[j]
		}
	}

	ki := degrees[node]
	return sigmaIn/totalWeight - (ki*sigmaTot)/(totalWeight*totalWeight)
}

// generateCommunityLabel names a community after its most mentioned
// members.
func generateCommunityLabel(members []*graph.GraphNode) string {
	if len(members) == 0 {
		return "Community (empty)"
	}

	sorted := append([]*graph.GraphNode(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Mentions != sorted[j].Mentions {
			return sorted[i].Mentions > sorted[j].Mentions
		}
		return sorted[i].Name < sorted[j].Name
	})

	names := make([]string, 0, 3)
	for _, n := range sorted {
		if len(names) == 3 {
			break
		}
		names = append(names, n.Name)
	}

	if len(sorted) <= 3 {
		return fmt.Sprintf("Community (%s)", strings.Join(names, ", "))
	}
	return fmt.Sprintf("Community (%s, +%d more)", strings.Join(names, ", "), len(sorted)-3)
}
