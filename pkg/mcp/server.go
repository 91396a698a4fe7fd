// Package mcp exposes the task list as Model Context Protocol tools so desktop
// assistants can read and edit it directly.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/harrisonrobin/jarvis/pkg/taskstore"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/calendar/v3"
)

const Version = "0.1.0"

// Calendar is the part of the calendar client the tools use.
type Calendar interface {
	ListEvents(ctx context.Context, startDate, endDate string, maxResults int64) ([]*calendar.Event, error)
	SyncTask(ctx context.Context, task model.Task) (*calendar.Event, error)
	UnsyncTask(ctx context.Context, taskID string) error
}

// NewServer registers the task tools, and the calendar tools when cal is not nil.
func NewServer(store *taskstore.Store, cal Calendar) *server.MCPServer {
	s := server.NewMCPServer("Jarvis", Version)

	priority := mcp.Enum(string(model.PriorityLow), string(model.PriorityMedium), string(model.PriorityHigh))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task in the user's to-do list."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("due_date", mcp.Description("Due date, ISO 8601 (YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS)")),
		mcp.WithString("priority", mcp.Description("low, medium or high (default medium)"), priority),
	), createTaskHandler(store))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(store))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally filtered."),
		mcp.WithBoolean("completed", mcp.Description("Only completed (true) or pending (false) tasks")),
		mcp.WithString("priority", mcp.Description("Only tasks with this priority"), priority),
		mcp.WithString("due_date", mcp.Description("Only tasks due on this date (YYYY-MM-DD)")),
		mcp.WithBoolean("overdue", mcp.Description("Only pending tasks due before today")),
	), listTasksHandler(store))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of a task. Omitted fields are left alone; an empty due_date clears it."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("due_date", mcp.Description("New due date, ISO 8601")),
		mcp.WithString("priority", mcp.Description("New priority"), priority),
		mcp.WithBoolean("completed", mcp.Description("Completion status")),
	), updateTaskHandler(store))

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task as completed."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), completeTaskHandler(store))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(store, cal))

	if cal != nil {
		s.AddTool(mcp.NewTool("schedule_task",
			mcp.WithDescription("Put a task with a due date on the calendar, or refresh its event."),
			mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		), scheduleTaskHandler(store, cal))

		s.AddTool(mcp.NewTool("list_events",
			mcp.WithDescription("List upcoming calendar events."),
			mcp.WithString("start_date", mcp.Description("First day, YYYY-MM-DD (default today)")),
			mcp.WithString("end_date", mcp.Description("Last day, YYYY-MM-DD (default a week later)")),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of events (default 10)")),
		), listEventsHandler(cal))
	}

	return s
}

// Serve runs the server on stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func optionalString(args map[string]any, key string) (model.Optional[string], error) {
	v, ok := args[key]
	if !ok {
		return model.Optional[string]{}, nil
	}
	if v == nil {
		return model.Null[string](), nil
	}
	s, ok := v.(string)
	if !ok {
		return model.Optional[string]{}, fmt.Errorf("%w: %s must be a string", model.ErrValidation, key)
	}
	return model.Some(s), nil
}

func parseDue(s string) (*model.Timestamp, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := model.ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func createTaskHandler(store *taskstore.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		due, err := parseDue(mcp.ParseString(request, "due_date", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task, err := store.Create(ctx, model.NewTask{
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
			DueDate:     due,
			Priority:    model.Priority(mcp.ParseString(request, "priority", "")),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func getTaskHandler(store *taskstore.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := store.Get(mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func listTasksHandler(store *taskstore.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		var f taskstore.Filter
		if v, ok := args["completed"].(bool); ok {
			f.Completed = &v
		}
		if v := mcp.ParseString(request, "priority", ""); v != "" {
			p, err := model.ParsePriority(v)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			f.Priority = p
		}
		f.DueDate = mcp.ParseString(request, "due_date", "")
		f.Overdue = mcp.ParseBoolean(request, "overdue", false)

		return jsonResult(map[string]any{"tasks": store.Query(f)})
	}
}

func updateTaskHandler(store *taskstore.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		var p model.TaskPatch
		var err error

		if p.Title, err = optionalString(args, "title"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if p.Description, err = optionalString(args, "description"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		priority, err := optionalString(args, "priority")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Priority = model.Optional[model.Priority]{Value: model.Priority(priority.Value), Set: priority.Set, Null: priority.Null}

		due, err := optionalString(args, "due_date")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if due.Set {
			ts, err := parseDue(due.Value)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if ts == nil {
				p.DueDate = model.Null[model.Timestamp]()
			} else {
				p.DueDate = model.Some(*ts)
			}
		}
		if v, ok := args["completed"].(bool); ok {
			p.Completed = model.Some(v)
		}

		if p.Empty() {
			return mcp.NewToolResultError("nothing to update"), nil
		}
		task, err := store.Update(ctx, mcp.ParseString(request, "id", ""), p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func completeTaskHandler(store *taskstore.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := store.Update(ctx, mcp.ParseString(request, "id", ""), model.TaskPatch{Completed: model.Some(true)})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func deleteTaskHandler(store *taskstore.Store, cal Calendar) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		deleted, err := store.Delete(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !deleted {
			return mcp.NewToolResultText(fmt.Sprintf("No task with id '%s'.", id)), nil
		}
		if cal != nil {
			if err := cal.UnsyncTask(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
				return mcp.NewToolResultText(fmt.Sprintf("Task '%s' deleted, but its calendar event could not be removed: %v", id, err)), nil
			}
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task '%s' deleted.", id)), nil
	}
}

func scheduleTaskHandler(store *taskstore.Store, cal Calendar) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := store.Get(mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ev, err := cal.SyncTask(ctx, task)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(ev)
	}
}

func listEventsHandler(cal Calendar) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		events, err := cal.ListEvents(ctx,
			mcp.ParseString(request, "start_date", ""),
			mcp.ParseString(request, "end_date", ""),
			int64(mcp.ParseInt(request, "max_results", 0)),
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"events": events})
	}
}
