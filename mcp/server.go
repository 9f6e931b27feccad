// Package mcp provides the MCP (Model Context Protocol) server for kin.
//
// It exposes a stored character graph to MCP clients over stdio: name
// search, the relations of one character, the heaviest pairs, and an
// overview of the network.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/kin-go/internal/graph"
	"github.com/Benny93/kin-go/internal/storage"
)

const (
	serverName    = "kin"
	serverVersion = "0.1.0"

	defaultQueryLimit = 20
	defaultPairLimit  = 10
)

// Server represents the MCP server.
type Server struct {
	storage StorageBackend
	server  *mcp.Server
}

// StorageBackend is the read side of storage.StorageBackend used by the
// server.
type StorageBackend interface {
	FTSSearch(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error)
	GetNeighbors(ctx context.Context, nodeID string) ([]storage.Neighbor, error)
	TopPairs(ctx context.Context, limit int) ([]*graph.GraphRelationship, error)
	GetMentions(ctx context.Context, qid string) ([]uint32, error)
	GetNodesByLabel(ctx context.Context, label graph.NodeLabel) []*graph.GraphNode
	NodeCount() int
	RelationshipCount() int
	Close() error
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server.
func NewServer(storage StorageBackend) *Server {
	return &Server{
		storage: storage,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "kin_query",
			Description: "Search characters by name, alias or QID. Returns ranked characters with mention counts and community.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Name, alias or QID to search for"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "kin_relations",
			Description: "List the relations of one character: every related character with the dominant relation and all relation counts.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"character": {Type: "string", Description: "Name, alias or QID of the character"},
				},
				Required: []string{"character"},
			},
		},
		{
			Name:        "kin_pairs",
			Description: "List the character pairs with the heaviest relation counts.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"limit": {Type: "integer", Description: "Maximum number of pairs"},
				},
			},
		},
		{
			Name:        "kin_communities",
			Description: "List the detected character communities and their members.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "kin://overview",
			Name:        "Network Overview",
			Description: "Node, edge and community counts of the stored character graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "kin://schema",
			Name:        "Graph Schema",
			Description: "Description of the character graph schema",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "kin_query":
		query, _ := args["query"].(string)
		return handleQuery(ctx, s.storage, query, intArg(args, "limit", defaultQueryLimit))
	case "kin_relations":
		character, _ := args["character"].(string)
		return handleRelations(ctx, s.storage, character)
	case "kin_pairs":
		return handlePairs(ctx, s.storage, intArg(args, "limit", defaultPairLimit))
	case "kin_communities":
		return handleCommunities(ctx, s.storage), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "kin://overview":
		return getOverview(ctx, s.storage), nil
	case "kin://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	// MCP stdio needs compact JSON, one message per line.
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		// Notifications carry no id and get no response.
		if _, ok := req["id"]; !ok {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return result(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return result(id, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if schema, err := json.Marshal(tool.InputSchema); err == nil {
			_ = json.Unmarshal(schema, &schemaMap)
		}

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}
	return result(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}
	return result(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)
	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"contents": []map[string]any{
			{"uri": uri, "mimeType": "text/plain", "text": content},
		},
	})
}

// Tool Handlers

func handleQuery(ctx context.Context, store StorageBackend, query string, limit int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "No query provided", nil
	}

	results, err := store.FTSSearch(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No characters found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d characters for '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, r.NodeName, r.QID)
		if node, err := store.GetNode(ctx, r.NodeID); err == nil && node != nil {
			fmt.Fprintf(&sb, "   Mentions: %d\n", node.Mentions)
			if node.Community >= 0 {
				fmt.Fprintf(&sb, "   Community: %d\n", node.Community)
			}
		}
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   Aliases: %s\n", truncate(r.Snippet, 200))
		}
		fmt.Fprintf(&sb, "   Score: %.3f\n\n", r.Score)
	}
	sb.WriteString("Next: Use `kin_relations` on a character for its relations.")
	return sb.String(), nil
}

// resolveCharacter finds the node of a character by QID, exact name or
// best search hit.
func resolveCharacter(ctx context.Context, store StorageBackend, character string) (*graph.GraphNode, error) {
	if node, err := store.GetNode(ctx, graph.GenerateID(graph.NodeCharacter, character)); err == nil && node != nil {
		return node, nil
	}

	results, err := store.FTSSearch(ctx, character, 10)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("character '%s' not found", character)
	}

	best := results[0]
	for _, r := range results {
		if strings.EqualFold(r.NodeName, character) {
			best = r
			break
		}
	}
	node, err := store.GetNode(ctx, best.NodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("character '%s' not found", character)
	}
	return node, nil
}

func handleRelations(ctx context.Context, store StorageBackend, character string) (string, error) {
	if strings.TrimSpace(character) == "" {
		return "No character provided", nil
	}

	node, err := resolveCharacter(ctx, store, character)
	if err != nil {
		return fmt.Sprintf("Character '%s' not found in graph", character), nil
	}

	neighbors, err := store.GetNeighbors(ctx, node.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Relations of **%s** (%s)\n\n", node.Name, node.QID)
	if chunks, err := store.GetMentions(ctx, node.QID); err == nil && len(chunks) > 0 {
		fmt.Fprintf(&sb, "Mentioned in %d chunks (first: %d)\n\n", len(chunks), chunks[0])
	}

	if len(neighbors) == 0 {
		sb.WriteString("No relations found. The character may only be mentioned in passing.\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "## Related Characters (%d)\n", len(neighbors))
	for _, n := range neighbors {
		fmt.Fprintf(&sb, "- %s (%s): %s x%d", n.Node.Name, n.Node.QID, n.Edge.Relation, n.Edge.Weight)
		if others := formatCounts(n.Edge.Counts, n.Edge.Relation); others != "" {
			fmt.Fprintf(&sb, " [also %s]", others)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nNext: Use `kin_pairs` to compare with the strongest pairs overall.")
	return sb.String(), nil
}

func handlePairs(ctx context.Context, store StorageBackend, limit int) (string, error) {
	rels, err := store.TopPairs(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(rels) == 0 {
		return "No character pairs found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Top %d Pairs\n\n", len(rels))
	for i, rel := range rels {
		fmt.Fprintf(&sb, "%d. %s - %s: %s x%d\n",
			i+1, nodeName(ctx, store, rel.Source), nodeName(ctx, store, rel.Target), rel.Relation, rel.Weight)
	}
	return sb.String(), nil
}

func handleCommunities(ctx context.Context, store StorageBackend) string {
	communities := store.GetNodesByLabel(ctx, graph.NodeCommunity)
	if len(communities) == 0 {
		return "No communities detected"
	}
	sort.Slice(communities, func(i, j int) bool {
		return communities[i].Community < communities[j].Community
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Communities (%d)\n\n", len(communities))
	for _, c := range communities {
		members := communityMembers(ctx, store, c)
		fmt.Fprintf(&sb, "%d. **%s** (%d members)\n", c.Community, c.Name, len(members))
		for _, m := range members {
			fmt.Fprintf(&sb, "   - %s\n", m)
		}
	}
	return sb.String()
}

// communityMembers returns member names, read from the "members" property
// which holds QIDs.
func communityMembers(ctx context.Context, store StorageBackend, c *graph.GraphNode) []string {
	var qids []string
	switch v := c.Properties["members"].(type) {
	case []string:
		qids = v
	case []any:
		for _, q := range v {
			if s, ok := q.(string); ok {
				qids = append(qids, s)
			}
		}
	}

	names := make([]string, len(qids))
	for i, qid := range qids {
		names[i] = nodeName(ctx, store, graph.GenerateID(graph.NodeCharacter, qid))
	}
	return names
}

// Resource Handlers

func getOverview(ctx context.Context, store StorageBackend) string {
	characters := store.GetNodesByLabel(ctx, graph.NodeCharacter)
	unresolved := 0
	for _, n := range characters {
		if n.Unresolved {
			unresolved++
		}
	}

	var sb strings.Builder
	sb.WriteString("# kin Character Graph Overview\n\n")
	fmt.Fprintf(&sb, "**Nodes:** %d\n", store.NodeCount())
	fmt.Fprintf(&sb, "**Relationships:** %d\n", store.RelationshipCount())
	fmt.Fprintf(&sb, "**Characters:** %d", len(characters))
	if unresolved > 0 {
		sb.WriteString(" (including the unresolved N/A node)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "**Communities:** %d\n", len(store.GetNodesByLabel(ctx, graph.NodeCommunity)))

	if rels, err := store.TopPairs(ctx, 1); err == nil && len(rels) == 1 {
		fmt.Fprintf(&sb, "**Strongest pair:** %s - %s (%s x%d)\n",
			nodeName(ctx, store, rels[0].Source), nodeName(ctx, store, rels[0].Target), rels[0].Relation, rels[0].Weight)
	}
	return sb.String()
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# kin Character Graph Schema\n\n")
	sb.WriteString("## Node Labels\n\n")
	sb.WriteString("| Label | Description | Key Properties |\n")
	sb.WriteString("|-------|-------------|----------------|\n")
	sb.WriteString("| `character` | Roster character, or the shared N/A node | qid, name, aliases, mentions, size, community |\n")
	sb.WriteString("| `community` | Group found by modularity clustering | member_count, members |\n")
	sb.WriteString("\n## Relationship Types\n\n")
	sb.WriteString("| Type | Source → Target | Properties |\n")
	sb.WriteString("|------|-----------------|------------|\n")
	sb.WriteString("| `related` | Character → Character (undirected, lower QID first) | relation, weight, width, counts |\n")
	sb.WriteString("| `member_of` | Character → Community | - |\n")
	return sb.String()
}

// Helper functions

func nodeName(ctx context.Context, store StorageBackend, nodeID string) string {
	node, err := store.GetNode(ctx, nodeID)
	if err != nil || node == nil {
		return nodeID
	}
	return node.Name
}

// formatCounts lists the relation counts other than the dominant one,
// heaviest first.
func formatCounts(counts map[string]int, dominant string) string {
	type entry struct {
		label string
		n     int
	}
	var entries []entry
	for label, n := range counts {
		if label != dominant {
			entries = append(entries, entry{label, n})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].label < entries[j].label
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s x%d", e.label, e.n)
	}
	return strings.Join(parts, ", ")
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func result(id any, body map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  body,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
