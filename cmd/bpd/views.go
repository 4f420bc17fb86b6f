package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bpdcentral/internal/domain"
	"bpdcentral/internal/report"
	"bpdcentral/internal/seed"
	"bpdcentral/internal/statesync"
)

func dashboardCmd() *cobra.Command {
	var withAudit bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Portfolio overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				state := svc.Snapshot()
				audit := ""
				if withAudit {
					audit = report.New().Audit(ctx, state.Tasks)
				}
				if viper.GetBool("json") {
					out := map[string]any{
						"mode":        connectivityLine(svc),
						"total":       len(state.Tasks),
						"efficiency":  efficiency(state.Tasks),
						"backlog":     statusTally(state.Tasks)[domain.StatusOpen],
						"statusTally": statusTally(state.Tasks),
						"overdue":     overdueTasks(state.Tasks),
						"programs":    programTally(state),
					}
					if withAudit {
						out["audit"] = audit
					}
					return printJSON(out)
				}
				printConnectivity(svc)
				renderDashboard(state)
				if withAudit {
					fmt.Println("\nExecutive audit:")
					fmt.Println(audit)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withAudit, "ai", false, "include the AI executive audit")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the AI executive audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				text := report.New().Audit(ctx, svc.Snapshot().Tasks)
				if viper.GetBool("json") {
					return printJSON(map[string]string{"audit": text})
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskMoveCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var status, program, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				state := svc.Snapshot()
				tasks := filterTasks(state.Tasks, status, program, assignee)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printConnectivity(svc)
				renderTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&program, "program", "", "program name filter")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				t := findTask(svc.Snapshot().Tasks, args[0])
				if t == nil {
					return fmt.Errorf("task %s not found", args[0])
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskAddCmd() *cobra.Command {
	var t domain.Task
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.Name == "" {
				return fmt.Errorf("--name required")
			}
			if t.ID == "" {
				t.ID = "t-" + uuid.NewString()
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				if t.AssignedToID != "" && t.AssignedTo == "" {
					if u := svc.Snapshot().FindUser(t.AssignedToID); u != nil {
						t.AssignedTo = u.Name
					}
				}
				svc.AddTask(ctx, t)
				if stored := findTask(svc.Snapshot().Tasks, t.ID); stored != nil {
					return printJSONOrTable(stored)
				}
				return fmt.Errorf("task %s was not accepted by the store", t.ID)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "task id (generated if omitted)")
	cmd.Flags().StringVar(&t.Name, "name", "", "task name")
	cmd.Flags().StringVar(&t.Description, "description", "", "description")
	cmd.Flags().StringVar(&t.Program, "program", "", "program name")
	cmd.Flags().StringVar(&t.AssignedToID, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&t.Priority, "priority", domain.PriorityMedium, "priority (Low, Medium, High, Critical)")
	cmd.Flags().StringVar(&t.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&t.PlannedEndDate, "due", "", "planned end date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&t.DependentTasks, "depends-on", []string{}, "dependency task id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var name, description, program, assigneeID, priority, start, due, actualEnd, status string
	var progress int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var patch domain.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("program") {
				patch.Program = &program
			}
			if flags.Changed("assignee-id") {
				patch.AssignedToID = &assigneeID
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("start") {
				patch.StartDate = &start
			}
			if flags.Changed("due") {
				patch.PlannedEndDate = &due
			}
			if flags.Changed("ended") {
				patch.ActualEndDate = &actualEnd
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("progress") {
				patch.Progress = &progress
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				if patch.AssignedToID != nil {
					if u := svc.Snapshot().FindUser(*patch.AssignedToID); u != nil {
						patch.AssignedTo = &u.Name
					}
				}
				svc.UpdateTask(ctx, id, patch)
				if stored := findTask(svc.Snapshot().Tasks, id); stored != nil {
					return printJSONOrTable(stored)
				}
				return fmt.Errorf("task %s not found after update", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&program, "program", "", "program name")
	cmd.Flags().StringVar(&assigneeID, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&start, "start", "", "start date")
	cmd.Flags().StringVar(&due, "due", "", "planned end date")
	cmd.Flags().StringVar(&actualEnd, "ended", "", "actual end date")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress (0-100)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.DeleteTask(ctx, args[0])
				if findTask(svc.Snapshot().Tasks, args[0]) != nil {
					return fmt.Errorf("task %s still present after delete", args[0])
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task between board columns",
		Long:  "Moving a task sets its status and the conventional progress for that column: OPEN resets to 0, COMPLETED fills to 100, anything else lands on 50.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := args[1]
			valid := false
			for _, s := range domain.TaskStatuses() {
				if s == status {
					valid = true
				}
			}
			if !valid {
				return fmt.Errorf("invalid status %q", status)
			}
			progress := domain.ProgressForStatus(status)
			patch := domain.TaskPatch{Status: &status, Progress: &progress}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.UpdateTask(ctx, args[0], patch)
				if stored := findTask(svc.Snapshot().Tasks, args[0]); stored != nil {
					return printJSONOrTable(stored)
				}
				return fmt.Errorf("task %s not found after move", args[0])
			})
		},
	}
	return cmd
}

func kanbanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kanban",
		Short: "Board view grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				state := svc.Snapshot()
				if viper.GetBool("json") {
					columns := map[string][]domain.Task{}
					for _, s := range domain.TaskStatuses() {
						columns[s] = filterTasks(state.Tasks, s, "", "")
					}
					return printJSON(columns)
				}
				printConnectivity(svc)
				renderKanban(state.Tasks)
				return nil
			})
		},
	}
	return cmd
}

func programCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "program",
		Short: "Manage grant programs",
	}
	p.AddCommand(programListCmd())
	p.AddCommand(programAddCmd())
	p.AddCommand(programUpdateCmd())
	p.AddCommand(programDeleteCmd())
	return p
}

func programListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				state := svc.Snapshot()
				if viper.GetBool("json") {
					return printJSON(state.Programs)
				}
				printConnectivity(svc)
				renderPrograms(state)
				return nil
			})
		},
	}
	return cmd
}

func programAddCmd() *cobra.Command {
	var p domain.Program
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a program",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Name == "" {
				return fmt.Errorf("--name required")
			}
			if p.ID == "" {
				p.ID = "p-" + uuid.NewString()
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				if p.Color == "" {
					n := len(svc.Snapshot().Programs)
					p.Color = seed.ProgramColors[n%len(seed.ProgramColors)]
				}
				svc.AddProgram(ctx, p)
				for _, stored := range svc.Snapshot().Programs {
					if stored.ID == p.ID {
						return printJSONOrTable(stored)
					}
				}
				return fmt.Errorf("program %s was not accepted by the store", p.ID)
			})
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "program id (generated if omitted)")
	cmd.Flags().StringVar(&p.Name, "name", "", "program name")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	cmd.Flags().StringVar(&p.Color, "color", "", "display color (defaults to the next palette entry)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func programUpdateCmd() *cobra.Command {
	var name, description, color string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.ProgramPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("color") {
				patch.Color = &color
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.UpdateProgram(ctx, args[0], patch)
				for _, stored := range svc.Snapshot().Programs {
					if stored.ID == args[0] {
						return printJSONOrTable(stored)
					}
				}
				return fmt.Errorf("program %s not found after update", args[0])
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "program name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	return cmd
}

func programDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a program",
		Long:  "Tasks reference programs by name, so deleting a program leaves its tasks untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.DeleteProgram(ctx, args[0])
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func teamCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "team",
		Short: "Manage team members",
	}
	t.AddCommand(teamListCmd())
	t.AddCommand(teamAddCmd())
	t.AddCommand(teamUpdateCmd())
	t.AddCommand(teamDeleteCmd())
	return t
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				state := svc.Snapshot()
				if viper.GetBool("json") {
					return printJSON(state.Users)
				}
				printConnectivity(svc)
				renderTeam(state)
				return nil
			})
		},
	}
	return cmd
}

func teamAddCmd() *cobra.Command {
	var u domain.User
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if u.Name == "" {
				return fmt.Errorf("--name required")
			}
			if u.ID == "" {
				u.ID = "u-" + uuid.NewString()
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.AddUser(ctx, u)
				if stored := svc.Snapshot().FindUser(u.ID); stored != nil {
					return printJSONOrTable(stored)
				}
				return fmt.Errorf("user %s was not accepted by the store", u.ID)
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id (generated if omitted)")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.Role, "role", "Staff", "role (Admin, Manager, Staff)")
	cmd.Flags().StringVar(&u.Department, "department", "", "department")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamUpdateCmd() *cobra.Command {
	var name, email, role, department string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.UserPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("email") {
				patch.Email = &email
			}
			if flags.Changed("role") {
				patch.Role = &role
			}
			if flags.Changed("department") {
				patch.Department = &department
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.UpdateUser(ctx, args[0], patch)
				if stored := svc.Snapshot().FindUser(args[0]); stored != nil {
					return printJSONOrTable(stored)
				}
				return fmt.Errorf("user %s not found after update", args[0])
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&department, "department", "", "department")
	return cmd
}

func teamDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				if !svc.IsConnected() {
					return fmt.Errorf("writes require a store connection (%s)", connectivityLine(svc))
				}
				svc.DeleteUser(ctx, args[0])
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live snapshot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return withService(ctx, func(ctx context.Context, svc *statesync.Service) error {
				unsubscribe := svc.Subscribe(func(state domain.AppState) {
					fmt.Printf("--- %s [%s] ---\n", time.Now().Format("15:04:05"), connectivityLine(svc))
					renderTasks(state.Tasks)
				})
				defer unsubscribe()
				<-ctx.Done()
				return nil
			})
		},
	}
	return cmd
}

// --- rendering ---

func renderDashboard(state domain.AppState) {
	tally := statusTally(state.Tasks)
	fmt.Printf("Tasks: %d   Efficiency: %d%%   Backlog: %d   Programs: %d\n\n",
		len(state.Tasks), efficiency(state.Tasks), tally[domain.StatusOpen], len(state.Programs))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Status", "Tasks"})
	for _, s := range domain.TaskStatuses() {
		tw.AppendRow(table.Row{s, tally[s]})
	}
	tw.AppendFooter(table.Row{"Total", len(state.Tasks)})
	tw.Render()

	overdue := overdueTasks(state.Tasks)
	if len(overdue) > 0 {
		fmt.Println("\nOverdue:")
		renderTasks(overdue)
	}

	fmt.Println("\nPrograms:")
	renderPrograms(state)
}

func renderTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Program", "Assignee", "Priority", "Status", "Progress", "Due"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Program, t.AssignedTo, t.Priority, t.Status, fmt.Sprintf("%d%%", t.Progress), t.PlannedEndDate})
	}
	tw.Render()
}

func renderKanban(tasks []domain.Task) {
	statuses := domain.TaskStatuses()
	columns := make([][]string, len(statuses))
	maxLen := 0
	for i, s := range statuses {
		for _, t := range filterTasks(tasks, s, "", "") {
			columns[i] = append(columns[i], fmt.Sprintf("%s (%d%%)", t.Name, t.Progress))
		}
		if len(columns[i]) > maxLen {
			maxLen = len(columns[i])
		}
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{}
	for _, s := range statuses {
		header = append(header, s)
	}
	tw.AppendHeader(header)
	for i := 0; i < maxLen; i++ {
		row := table.Row{}
		for _, col := range columns {
			cell := ""
			if i < len(col) {
				cell = col[i]
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func renderPrograms(state domain.AppState) {
	counts := programTally(state)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Description", "Color", "Tasks"})
	for _, p := range state.Programs {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Description, p.Color, counts[p.Name]})
	}
	tw.Render()
}

func renderTeam(state domain.AppState) {
	open := map[string]int{}
	for _, t := range state.Tasks {
		if t.Status != domain.StatusCompleted {
			open[t.AssignedToID]++
		}
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Department", "Open Tasks"})
	for _, u := range state.Users {
		marker := u.Name
		if state.CurrentUser != nil && state.CurrentUser.ID == u.ID {
			marker = u.Name + " *"
		}
		tw.AppendRow(table.Row{u.ID, marker, u.Email, u.Role, u.Department, open[u.ID]})
	}
	tw.Render()
}

func renderEvents(evts []domain.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
	for _, e := range evts {
		entity := e.EntityKind
		if e.EntityID != "" {
			entity = e.EntityKind + "/" + e.EntityID
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.Actor})
	}
	tw.Render()
}

// --- snapshot helpers ---

func filterTasks(tasks []domain.Task, status, program, assigneeID string) []domain.Task {
	out := []domain.Task{}
	for _, t := range tasks {
		if status != "" && t.Status != status {
			continue
		}
		if program != "" && t.Program != program {
			continue
		}
		if assigneeID != "" && t.AssignedToID != assigneeID {
			continue
		}
		out = append(out, t)
	}
	return out
}

func findTask(tasks []domain.Task, id string) *domain.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

func statusTally(tasks []domain.Task) map[string]int {
	out := map[string]int{}
	for _, t := range tasks {
		out[t.Status]++
	}
	return out
}

// efficiency is the share of tasks completed, in whole percent.
func efficiency(tasks []domain.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted {
			done++
		}
	}
	return done * 100 / len(tasks)
}

func programTally(state domain.AppState) map[string]int {
	out := map[string]int{}
	for _, t := range state.Tasks {
		out[t.Program]++
	}
	return out
}

// overdueTasks returns unfinished tasks past their planned end date, soonest
// first. Tasks without a planned end date never show up here.
func overdueTasks(tasks []domain.Task) []domain.Task {
	today := time.Now().Format("2006-01-02")
	out := []domain.Task{}
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted || t.PlannedEndDate == "" {
			continue
		}
		if t.PlannedEndDate < today {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlannedEndDate < out[j].PlannedEndDate })
	return out
}
