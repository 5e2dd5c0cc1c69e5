package mcpapi

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/warden/internal/adapters/server/common"
)

// projectArgs carries a bare project id.
type projectArgs struct {
	ProjectID string `json:"project_id"`
}

// taskArgs carries a bare task id.
type taskArgs struct {
	TaskID string `json:"task_id"`
}

func registerAuthorizeTool(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.authorize",
			mcp.WithDescription("Check whether the caller may perform an operation, or holds a role, on a project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("operation", mcp.Description("Operation name such as task.create")),
			mcp.WithString("required_role", mcp.Description("viewer, editor, or owner"), mcp.Enum("viewer", "editor", "owner")),
		),
		func(ctx context.Context, args common.AuthorizeRequest) (any, error) {
			return ws.Authorize(ctx, args)
		},
	)
}

func registerProjectTools(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.list_projects",
			mcp.WithDescription("List projects visible to the caller with the caller's role."),
		),
		func(ctx context.Context, _ struct{}) (any, error) {
			rows, err := ws.ListProjects(ctx)
			return map[string]any{"projects": rows}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.get_project",
			mcp.WithDescription("Return one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			if err := requireArg("project_id", args.ProjectID); err != nil {
				return nil, err
			}
			return ws.GetProject(ctx, args.ProjectID)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.create_project",
			mcp.WithDescription("Create a project owned by the caller, optionally under a parent project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("parent_id", mcp.Description("Parent project id")),
		),
		func(ctx context.Context, args common.CreateProjectRequest) (any, error) {
			if err := requireArg("name", args.Name); err != nil {
				return nil, err
			}
			return ws.CreateProject(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.update_project",
			mcp.WithDescription("Rename one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("name", mcp.Required(), mcp.Description("New project name")),
		),
		func(ctx context.Context, args common.UpdateProjectRequest) (any, error) {
			return ws.UpdateProject(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.move_project",
			mcp.WithDescription("Re-parent one project. An empty parent_id makes it a root."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("parent_id", mcp.Description("New parent project id")),
		),
		func(ctx context.Context, args common.MoveProjectRequest) (any, error) {
			return ws.MoveProject(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.delete_project",
			mcp.WithDescription("Delete a project and its sub-projects."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			deleted, err := ws.DeleteProject(ctx, args.ProjectID)
			return map[string]any{"deleted": deleted}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.list_change_events",
			mcp.WithDescription("List recent change events for one project, newest first."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum events to return")),
		),
		func(ctx context.Context, args struct {
			ProjectID string `json:"project_id"`
			Limit     int    `json:"limit"`
		}) (any, error) {
			events, err := ws.ListChangeEvents(ctx, args.ProjectID, args.Limit)
			return map[string]any{"events": events}, err
		},
	)
}

func registerMemberTools(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.list_members",
			mcp.WithDescription("List the members of one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			rows, err := ws.ListMembers(ctx, args.ProjectID)
			return map[string]any{"members": rows}, err
		},
	)

	memberTool := func(name, description string) mcp.Tool {
		return mcp.NewTool(
			name,
			mcp.WithDescription(description),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Member user id")),
			mcp.WithString("role", mcp.Required(), mcp.Description("viewer or editor"), mcp.Enum("viewer", "editor")),
		)
	}
	addTool(srv, memberTool("warden.add_member", "Grant a user a role on a project."),
		func(ctx context.Context, args common.MemberRequest) (any, error) {
			return ws.AddMember(ctx, args)
		},
	)
	addTool(srv, memberTool("warden.update_member", "Change a member's role."),
		func(ctx context.Context, args common.MemberRequest) (any, error) {
			return ws.UpdateMember(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.remove_member",
			mcp.WithDescription("Revoke a user's membership."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Member user id")),
		),
		func(ctx context.Context, args common.MemberRequest) (any, error) {
			if err := ws.RemoveMember(ctx, args.ProjectID, args.UserID); err != nil {
				return nil, err
			}
			return map[string]any{"removed": args.UserID}, nil
		},
	)
}

func registerTaskTools(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.list_tasks",
			mcp.WithDescription("List the tasks of one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			rows, err := ws.ListTasks(ctx, args.ProjectID)
			return map[string]any{"tasks": rows}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.task_tree",
			mcp.WithDescription("Return the project's tasks flattened depth-first with depth."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			nodes, err := ws.TaskTree(ctx, args.ProjectID)
			return map[string]any{"nodes": nodes}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.create_task",
			mcp.WithDescription("Create a task, optionally under a parent task."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithString("parent_id", mcp.Description("Parent task id")),
			mcp.WithString("status_id", mcp.Description("Initial status id; defaults to the first status")),
		),
		func(ctx context.Context, args common.CreateTaskRequest) (any, error) {
			if err := requireArg("title", args.Title); err != nil {
				return nil, err
			}
			return ws.CreateTask(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.update_task",
			mcp.WithDescription("Edit a task or move it to another status, with an optional comment."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("status_id", mcp.Description("Target status id")),
			mcp.WithString("comment", mcp.Description("Comment recorded with the transition")),
		),
		func(ctx context.Context, args common.UpdateTaskRequest) (any, error) {
			return ws.UpdateTask(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.reparent_task",
			mcp.WithDescription("Move a task under another parent in the same project. An empty parent_id makes it a root."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("parent_id", mcp.Description("New parent task id")),
		),
		func(ctx context.Context, args common.ReparentTaskRequest) (any, error) {
			return ws.ReparentTask(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.delete_task",
			mcp.WithDescription("Delete a task."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("policy", mcp.Description("cascade or reject_if_children"), mcp.Enum("cascade", "reject_if_children")),
		),
		func(ctx context.Context, args common.DeleteTaskRequest) (any, error) {
			deleted, err := ws.DeleteTask(ctx, args)
			return map[string]any{"deleted": deleted}, err
		},
	)
}

func registerStatusTools(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.list_statuses",
			mcp.WithDescription("List a project's workflow statuses in order."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, args projectArgs) (any, error) {
			rows, err := ws.ListStatuses(ctx, args.ProjectID)
			return map[string]any{"statuses": rows}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.create_status",
			mcp.WithDescription("Add a workflow status to a project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Status label")),
			mcp.WithString("color", mcp.Description("#RGB or #RRGGBB; derived from the label when empty")),
			mcp.WithNumber("order", mcp.Description("Sort position; appended when omitted")),
			mcp.WithObject("flags", mcp.Description("show_strike_through, hidden, requires_comment, allows_comment")),
		),
		func(ctx context.Context, args common.CreateStatusRequest) (any, error) {
			return ws.CreateStatus(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.update_status",
			mcp.WithDescription("Patch a workflow status. Omitted fields are left alone."),
			mcp.WithString("status_id", mcp.Required(), mcp.Description("Status identifier")),
			mcp.WithString("label", mcp.Description("New label")),
			mcp.WithString("color", mcp.Description("New color; empty re-derives it from the label")),
			mcp.WithNumber("order", mcp.Description("New sort position")),
			mcp.WithObject("flags", mcp.Description("Replacement flag set")),
		),
		func(ctx context.Context, args common.UpdateStatusRequest) (any, error) {
			return ws.UpdateStatus(ctx, args)
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.delete_status",
			mcp.WithDescription("Delete a workflow status, rejecting or reassigning tasks that use it."),
			mcp.WithString("status_id", mcp.Required(), mcp.Description("Status identifier")),
			mcp.WithString("on_in_use", mcp.Description("reject or reassign"), mcp.Enum("reject", "reassign")),
			mcp.WithString("fallback_status_id", mcp.Description("Status receiving reassigned tasks")),
		),
		func(ctx context.Context, args common.DeleteStatusRequest) (any, error) {
			moved, err := ws.DeleteStatus(ctx, args)
			return map[string]any{"reassigned": moved}, err
		},
	)
}

func registerCommentTools(srv *mcpserver.MCPServer, ws common.Workspace) {
	addTool(srv,
		mcp.NewTool(
			"warden.list_comments",
			mcp.WithDescription("List a task's comments, oldest first."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, args taskArgs) (any, error) {
			rows, err := ws.ListComments(ctx, args.TaskID)
			return map[string]any{"comments": rows}, err
		},
	)

	addTool(srv,
		mcp.NewTool(
			"warden.add_comment",
			mcp.WithDescription("Attach a comment to a task."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Comment body")),
		),
		func(ctx context.Context, args common.AddCommentRequest) (any, error) {
			return ws.AddComment(ctx, args)
		},
	)
}
