package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(st Store, sync Syncer, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("SplitLog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("SplitLog workout tracker. Query training splits, today's scheduled workout, completed-workout history, streaks and per-muscle volume, and trigger a sync against the server."),
	)

	h := &handlers{st: st, sync: sync, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetTodayWorkout, Handler: h.getTodayWorkout},
		server.ServerTool{Tool: toolListSplits, Handler: h.listSplits},
		server.ServerTool{Tool: toolGetSplit, Handler: h.getSplit},
		server.ServerTool{Tool: toolGetHistory, Handler: h.getHistory},
		server.ServerTool{Tool: toolGetStreak, Handler: h.getStreak},
		server.ServerTool{Tool: toolGetVolumeStats, Handler: h.getVolumeStats},
		server.ServerTool{Tool: toolSyncNow, Handler: h.syncNow},
		server.ServerTool{Tool: toolGetSyncStatus, Handler: h.getSyncStatus},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resActiveSplit, Handler: h.activeSplit},
		server.ServerResource{Resource: resToday, Handler: h.today},
		server.ServerResource{Resource: resProfile, Handler: h.profile},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	st   Store
	sync Syncer
	log  *slog.Logger
}

// --- Resource definitions ---

var resActiveSplit = mcp.NewResource(
	"splitlog://active_split",
	"Active Split",
	mcp.WithResourceDescription("The active training split with all days, exercises and sets"),
	mcp.WithMIMEType("application/json"),
)

var resToday = mcp.NewResource(
	"splitlog://today",
	"Today's Workout",
	mcp.WithResourceDescription("The rotation day due today, after applying any pending calendar rollover"),
	mcp.WithMIMEType("application/json"),
)

var resProfile = mcp.NewResource(
	"splitlog://profile",
	"Profile",
	mcp.WithResourceDescription("User profile: physical stats, display preferences, streak state and rotation position"),
	mcp.WithMIMEType("application/json"),
)
