// Package mcp exposes stored mind maps to Model Context Protocol clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// ResourcePrefix is the URI prefix of map resources.
const ResourcePrefix = "arbor://maps/"

// Maps is the part of the relay the MCP server drives.
type Maps interface {
	Apply(ctx context.Context, mapID, sender string, p domain.Patch) (arbor.Result, *domain.Node, error)
	Get(ctx context.Context, mapID string) (*domain.Node, error)
	Snapshot(ctx context.Context, mapID string) (domain.Snapshot, error)
	List(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, mapID string, history []string) (*domain.Node, error)
}

// EditResponse reports the result of an edit tool.
type EditResponse struct {
	Outcome domain.Outcome `json:"outcome" jsonschema_description:"What happened to the edit"`
	NodeID  string         `json:"node_id,omitempty" jsonschema_description:"ID of the node the edit targeted"`
	Map     *domain.Node   `json:"map,omitempty" jsonschema_description:"The map after the edit"`
}

// SnapshotArgs selects the map to lay out.
type SnapshotArgs struct {
	MapID string `json:"map_id"`
}

// Server exposes a relay as an MCP server.
type Server struct {
	maps      Maps
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(maps Maps, opts ...Option) *Server {
	s := &Server{
		maps:      maps,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx
// is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_maps",
		mcp.WithDescription("List the IDs of all stored mind maps."),
	), s.handleListMaps)

	s.mcpServer.AddTool(mcp.NewTool("get_map",
		mcp.WithDescription("Get a mind map as a nested tree of name, attributes and children."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
	), s.handleGetMap)

	s.mcpServer.AddTool(mcp.NewTool("layout_snapshot",
		mcp.WithDescription("Get the positioned nodes and edges of a mind map."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
		mcp.WithOutputSchema[domain.Snapshot](),
	), mcp.NewStructuredToolHandler(s.handleSnapshot))

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a child node under an existing node."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
		mcp.WithString("parent_id", mcp.Required(), mcp.Description("ID of the parent node")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label of the new node")),
		mcp.WithString("node_id", mcp.Description("ID for the new node (generated when omitted)")),
	), s.handleAddNode)

	s.mcpServer.AddTool(mcp.NewTool("rename_node",
		mcp.WithDescription("Change the label, and optionally the note, of a node."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
		mcp.WithString("label", mcp.Required(), mcp.Description("New label")),
		mcp.WithString("note", mcp.Description("New note (left unchanged when omitted)")),
	), s.handleRenameNode)

	s.mcpServer.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node and its whole subtree."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
	), s.handleRemoveNode)

	s.mcpServer.AddTool(mcp.NewTool("generate_map",
		mcp.WithDescription("Replace a map with one generated from free text."),
		mcp.WithString("map_id", mcp.Required(), mcp.Description("Map ID")),
		mcp.WithString("input", mcp.Required(), mcp.Description("Conversation or notes to summarize")),
	), s.handleGenerate)
}

func (s *Server) handleListMaps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.maps.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(ids)
}

func (s *Server) handleGetMap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mapID, err := request.RequireString("map_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := s.maps.Get(ctx, mapID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(root)
}

func (s *Server) handleSnapshot(ctx context.Context, _ mcp.CallToolRequest, args SnapshotArgs) (domain.Snapshot, error) {
	if args.MapID == "" {
		return domain.Snapshot{}, errors.New("map_id is required")
	}
	return s.maps.Snapshot(ctx, args.MapID)
}

func (s *Server) handleAddNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mapID, err := request.RequireString("map_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parentID, err := request.RequireString("parent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := request.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID := request.GetString("node_id", "")
	if nodeID == "" {
		nodeID = domain.NewID()
	}
	return s.edit(ctx, mapID, domain.NodeAdded(nodeID, parentID, label))
}

func (s *Server) handleRenameNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mapID, err := request.RequireString("map_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := request.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := request.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var note *string
	if n, err := request.RequireString("note"); err == nil {
		note = &n
	}
	return s.edit(ctx, mapID, domain.NodeRenamed(nodeID, label, note))
}

func (s *Server) handleRemoveNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mapID, err := request.RequireString("map_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := request.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.edit(ctx, mapID, domain.NodeRemoved(nodeID))
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mapID, err := request.RequireString("map_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	input, err := request.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := s.maps.Generate(ctx, mapID, []string{input})
	if err != nil {
		s.logger.Warn("mcp: generation failed", "map_id", mapID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", err)), nil
	}
	return jsonResult(root)
}

// edit applies p as an MCP participant. Rejected patches are reported as tool
// errors so the model can correct itself.
func (s *Server) edit(ctx context.Context, mapID string, p domain.Patch) (*mcp.CallToolResult, error) {
	res, tree, err := s.maps.Apply(ctx, mapID, "mcp", p)
	if err != nil {
		s.logger.Warn("mcp: edit rejected", "map_id", mapID, "patch", p.String(), "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("edit rejected: %v", err)), nil
	}
	return jsonResult(EditResponse{Outcome: res.Outcome, NodeID: p.NodeID, Map: tree})
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(ResourcePrefix+"{id}", "Mind map",
		mcp.WithTemplateDescription("A stored mind map as a nested JSON tree"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readMap)
}

func (s *Server) readMap(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	mapID := strings.TrimPrefix(uri, ResourcePrefix)
	if mapID == "" || mapID == uri {
		return nil, fmt.Errorf("invalid map resource %q", uri)
	}
	root, err := s.maps.Get(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to read map %s: %w", mapID, err)
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
