package mcp

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/schedule"
	"github.com/claude/splitlog/internal/store"
	"github.com/claude/splitlog/internal/syncer"
)

// defaultDateRange returns start/end, defaulting to the last
// defaultDays calendar days when the parameters are empty.
func defaultDateRange(startStr, endStr string, defaultDays int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -defaultDays)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetTodayWorkout = mcp.NewTool("get_today_workout",
	mcp.WithDescription("Get the workout scheduled for today: the rotation day of the active split after applying any pending calendar rollover. Returns the day with its exercises and sets, or a rest-day marker when the rotation has a gap at the current position."),
)

var toolListSplits = mcp.NewTool("list_splits",
	mcp.WithDescription("List all training splits with day/exercise counts and which one is active."),
)

var toolGetSplit = mcp.NewTool("get_split",
	mcp.WithDescription("Get one split as a full tree: days in rotation order, exercises with muscle groups and rep goals, logged sets."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Split id (UUID, from list_splits)")),
)

var toolGetHistory = mcp.NewTool("get_history",
	mcp.WithDescription("List completed workout days in a date range with per-day set counts and volume."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to today.")),
)

var toolGetStreak = mcp.NewTool("get_streak",
	mcp.WithDescription("Get the workout streak: current and longest run, last workout date, pause state, and the rest-day tolerance that keeps a streak alive."),
)

var toolGetVolumeStats = mcp.NewTool("get_volume_stats",
	mcp.WithDescription("Training volume per muscle group over a date range, computed from completed workouts: sets, reps, and tonnage (weight times reps, in kg)."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to today.")),
)

var toolSyncNow = mcp.NewTool("sync_now",
	mcp.WithDescription("Run one sync pass immediately, regardless of network quality. Reports the outcome and the resulting sync status."),
)

var toolGetSyncStatus = mcp.NewTool("get_sync_status",
	mcp.WithDescription("Get the sync status: last successful sync, last error, network quality, whether a pass is in flight, and how many records wait to be pushed."),
)

// --- Tool handlers ---

func (h *handlers) getTodayWorkout(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := h.todayPayload(ctx, time.Now())
	if err != nil {
		h.log.Error("mcp get_today_workout", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// todayPayload backs both the get_today_workout tool and the
// splitlog://today resource.
func (h *handlers) todayPayload(ctx context.Context, now time.Time) (map[string]any, error) {
	payload := map[string]any{
		"date": models.FormatDate(now),
	}

	active, err := h.st.ActiveSplit(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		payload["activeSplit"] = nil
		payload["day"] = nil
		return payload, nil
	}

	day, pos, err := h.st.TodayDay(ctx, now)
	if err != nil {
		return nil, err
	}
	payload["activeSplit"] = active.Name
	payload["position"] = pos
	payload["restDay"] = day == nil
	payload["day"] = day
	return payload, nil
}

type splitSummary struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"isActive"`
	StartDate *time.Time `json:"startDate,omitempty"`
	Days      int        `json:"days"`
	Exercises int        `json:"exercises"`
}

func (h *handlers) listSplits(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	splits, err := h.st.Splits(ctx)
	if err != nil {
		h.log.Error("mcp list_splits", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	summaries := make([]splitSummary, 0, len(splits))
	for _, sp := range splits {
		exercises := 0
		for _, d := range sp.Days {
			exercises += len(d.Exercises)
		}
		summaries = append(summaries, splitSummary{
			ID:        sp.ID,
			Name:      sp.Name,
			IsActive:  sp.IsActive,
			StartDate: sp.StartDate,
			Days:      len(sp.Days),
			Exercises: exercises,
		})
	}

	result, err := mcp.NewToolResultJSON(summaries)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSplit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid split id: " + err.Error()), nil
	}

	split, err := h.st.SplitByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError("split not found"), nil
		}
		h.log.Error("mcp get_split", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(split)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

type historyDay struct {
	Date      string  `json:"date"`
	DayName   string  `json:"dayName"`
	Exercises int     `json:"exercises"`
	Sets      int     `json:"sets"`
	VolumeKg  float64 `json:"volumeKg"`
}

func (h *handlers) getHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultDateRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	completed, err := h.st.CompletedDaysBetween(ctx, models.FormatDate(start), models.FormatDate(end))
	if err != nil {
		h.log.Error("mcp get_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	days := make([]historyDay, 0, len(completed))
	for _, cd := range completed {
		entry := historyDay{Date: cd.Date, DayName: cd.Day.Name, Exercises: len(cd.Day.Exercises)}
		for _, ex := range cd.Day.Exercises {
			entry.Sets += len(ex.Sets)
			for _, set := range ex.Sets {
				entry.VolumeKg += set.Volume()
			}
		}
		days = append(days, entry)
	}

	result, err := mcp.NewToolResultJSON(days)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getStreak(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.st.Profile(ctx)
	if err != nil {
		h.log.Error("mcp get_streak", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	streak := schedule.StreakFromProfile(p)
	payload := map[string]any{
		"current":       streak.Current,
		"longest":       streak.Longest,
		"paused":        streak.Paused,
		"toleranceDays": streak.Tolerance(),
	}
	if streak.LastWorkout != nil {
		payload["lastWorkoutDate"] = models.FormatDate(*streak.LastWorkout)
	}

	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

type muscleVolume struct {
	MuscleGroup string  `json:"muscleGroup"`
	Sets        int     `json:"sets"`
	Reps        int     `json:"reps"`
	VolumeKg    float64 `json:"volumeKg"`
}

func (h *handlers) getVolumeStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultDateRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	completed, err := h.st.CompletedDaysBetween(ctx, models.FormatDate(start), models.FormatDate(end))
	if err != nil {
		h.log.Error("mcp get_volume_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	byGroup := make(map[string]*muscleVolume)
	totals := muscleVolume{MuscleGroup: "total"}
	for _, cd := range completed {
		for _, ex := range cd.Day.Exercises {
			group := string(ex.MuscleGroup)
			if group == "" {
				group = "untagged"
			}
			mv, ok := byGroup[group]
			if !ok {
				mv = &muscleVolume{MuscleGroup: group}
				byGroup[group] = mv
			}
			for _, set := range ex.Sets {
				mv.Sets++
				mv.Reps += set.Reps
				mv.VolumeKg += set.Volume()
				totals.Sets++
				totals.Reps += set.Reps
				totals.VolumeKg += set.Volume()
			}
		}
	}

	groups := make([]muscleVolume, 0, len(byGroup))
	for _, mv := range byGroup {
		groups = append(groups, *mv)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].VolumeKg > groups[j].VolumeKg })

	result, err := mcp.NewToolResultJSON(map[string]any{
		"start":        models.FormatDate(start),
		"end":          models.FormatDate(end),
		"workoutDays":  len(completed),
		"muscleGroups": groups,
		"total":        totals,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) syncNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.sync == nil {
		return mcp.NewToolResultError("sync is not configured on this node"), nil
	}

	if err := h.sync.SyncNow(ctx); err != nil {
		if errors.Is(err, syncer.ErrBusy) {
			return mcp.NewToolResultError("a sync pass is already in flight"), nil
		}
		h.log.Error("mcp sync_now", "error", err)
		return mcp.NewToolResultError("sync failed: " + err.Error()), nil
	}
	return h.getSyncStatus(ctx, mcp.CallToolRequest{})
}

func (h *handlers) getSyncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.sync == nil {
		return mcp.NewToolResultError("sync is not configured on this node"), nil
	}

	st, err := h.sync.Status(ctx)
	if err != nil {
		h.log.Error("mcp get_sync_status", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	payload := map[string]any{
		"quality":        st.Quality.String(),
		"inFlight":       st.InFlight,
		"pendingRecords": st.Dirty,
	}
	if !st.LastSync.IsZero() {
		payload["lastSync"] = st.LastSync.Format(time.RFC3339)
	}
	if st.LastError != nil {
		payload["lastError"] = st.LastError.Error()
	}

	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
