package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/syncclient"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

func listCmd(opts *rootOptions) *cobra.Command {
	var filter task.FilterOptions
	var status string
	var stats bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the current board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && status != "all" {
				if !task.Status(status).IsValid() {
					return fmt.Errorf("invalid status %q", status)
				}
				filter.Status = task.Status(status)
			}

			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			tasks := s.mirror.Tasks()
			out := cmd.OutOrStdout()
			if stats {
				return printStats(out, task.ComputeStats(tasks), opts.jsonOut)
			}
			return printTasks(out, task.Filter(tasks, filter), opts.jsonOut)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (todo, in-progress, done)")
	cmd.Flags().StringVarP(&filter.Search, "search", "q", "", "Case-insensitive match on title or description")
	cmd.Flags().StringVar(&filter.Priority, "priority", "", "Filter by priority (Low, Medium, High)")
	cmd.Flags().StringVar(&filter.Category, "category", "", "Filter by category (Bug, Feature, Enhancement)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print per-column counts instead of tasks")

	return cmd
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream board changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			s, err := openSession(ctx, opts, func(from, to syncclient.State) {
				fmt.Fprintf(out, "# %s -> %s\n", from, to)
			})
			if err != nil {
				return err
			}
			defer s.Close()

			return watch(ctx, s, out, opts.jsonOut)
		},
	}
}

// watch prints every relay event until ctx ends.
func watch(ctx context.Context, s *session, out io.Writer, jsonOut bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			if jsonOut {
				f, err := protocol.Encode(ev)
				if err != nil {
					return err
				}
				if err := json.NewEncoder(out).Encode(f); err != nil {
					return err
				}
				continue
			}
			describe(out, ev)
		}
	}
}

func describe(out io.Writer, ev protocol.Broadcast) {
	switch e := ev.(type) {
	case protocol.TasksAll:
		fmt.Fprintf(out, "board: %d tasks\n", len(e.Tasks))
		printTasks(out, e.Tasks, false)
	case protocol.TaskCreated:
		fmt.Fprintf(out, "created %s %q [%s]\n", e.Task.ID, e.Task.Title, e.Task.Status)
	case protocol.TaskUpdated:
		fmt.Fprintf(out, "updated %s %q [%s]\n", e.Task.ID, e.Task.Title, e.Task.Status)
	case protocol.TaskDeleted:
		fmt.Fprintf(out, "deleted %s\n", e.ID)
	case protocol.ErrorEvent:
		fmt.Fprintf(out, "error: %s\n", e.Message)
	}
}

// patchFlags binds the editable task fields to flags.
type patchFlags struct {
	title       string
	description string
	status      string
	priority    string
	category    string
	attachments []string
}

func (f *patchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Task title")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&f.status, "status", "s", "", "Status (todo, in-progress, done)")
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "Priority (Low, Medium, High)")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Category (Bug, Feature, Enhancement)")
	cmd.Flags().StringArrayVarP(&f.attachments, "attach", "a", nil, "Attachment as name=url (repeatable, replaces all)")
}

// patch includes only the flags the user actually set.
func (f *patchFlags) patch(cmd *cobra.Command) (task.Patch, error) {
	var p task.Patch
	changed := cmd.Flags().Changed

	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("status") {
		s := task.Status(f.status)
		p.Status = &s
	}
	if changed("priority") {
		pr := task.Priority(f.priority)
		p.Priority = &pr
	}
	if changed("category") {
		c := task.Category(f.category)
		p.Category = &c
	}
	if changed("attach") {
		atts, err := parseAttachments(f.attachments)
		if err != nil {
			return task.Patch{}, err
		}
		p.Attachments = &atts
	}

	if field := p.CheckEnums(); field != "" {
		return task.Patch{}, fmt.Errorf("invalid %s", field)
	}
	return p, nil
}

func parseAttachments(raw []string) ([]task.Attachment, error) {
	out := make([]task.Attachment, 0, len(raw))
	for _, r := range raw {
		name, url, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("invalid attachment %q, expected name=url", r)
		}
		out = append(out, task.Attachment{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)})
	}
	return out, nil
}

func createCmd(opts *rootOptions) *cobra.Command {
	var f patchFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}
			if err := task.Validate(task.New("", p)); err != nil {
				return err
			}

			return mutate(cmd, opts, protocol.EventCreate, p, func(ev protocol.Broadcast) bool {
				c, ok := ev.(protocol.TaskCreated)
				return ok && c.Task.Title == f.title
			})
		},
	}
	f.register(cmd)
	return cmd
}

func updateCmd(opts *rootOptions) *cobra.Command {
	var f patchFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}
			if p == (task.Patch{}) {
				return fmt.Errorf("nothing to update: set at least one field flag")
			}

			id := args[0]
			return mutate(cmd, opts, protocol.EventUpdate, protocol.UpdatePayload{ID: id, Patch: p}, updatedID(id))
		},
	}
	f.register(cmd)
	return cmd
}

func moveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, status := args[0], task.Status(args[1])
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q", args[1])
			}
			return mutate(cmd, opts, protocol.EventMove, protocol.MovePayload{ID: id, NewStatus: status}, updatedID(id))
		},
	}
}

func deleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return mutate(cmd, opts, protocol.EventDelete, protocol.IDPayload{ID: id}, func(ev protocol.Broadcast) bool {
				d, ok := ev.(protocol.TaskDeleted)
				return ok && d.ID == id
			})
		},
	}
}

func updatedID(id string) func(protocol.Broadcast) bool {
	return func(ev protocol.Broadcast) bool {
		u, ok := ev.(protocol.TaskUpdated)
		return ok && u.Task.ID == id
	}
}

// mutate sends one intent and prints the relay's broadcast answer.
func mutate(cmd *cobra.Command, opts *rootOptions, event string, payload any, match func(protocol.Broadcast) bool) error {
	s, err := openSession(cmd.Context(), opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	ev, err := s.request(ctx, event, payload, match)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch e := ev.(type) {
	case protocol.TaskCreated:
		return printTask(out, e.Task, opts.jsonOut)
	case protocol.TaskUpdated:
		return printTask(out, e.Task, opts.jsonOut)
	case protocol.TaskDeleted:
		if opts.jsonOut {
			return json.NewEncoder(out).Encode(protocol.IDPayload{ID: e.ID})
		}
		fmt.Fprintf(out, "deleted %s\n", e.ID)
	}
	return nil
}

func pingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Measure round-trip latency to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			deadline := time.After(opts.timeout)
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()

			for {
				h := s.ch.Health()
				if h.Quality != syncclient.QualityUnknown {
					out := cmd.OutOrStdout()
					if opts.jsonOut {
						return json.NewEncoder(out).Encode(h)
					}
					fmt.Fprintf(out, "%s: latency %s (%s)\n", s.url, h.Latency.Round(time.Microsecond), h.Quality)
					return nil
				}

				select {
				case <-ticker.C:
				case <-deadline:
					return fmt.Errorf("no ping reply from %s within %s", s.url, opts.timeout)
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
}

func printTasks(out io.Writer, tasks []task.Task, jsonOut bool) error {
	if jsonOut {
		if tasks == nil {
			tasks = []task.Task{}
		}
		return json.NewEncoder(out).Encode(tasks)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tCATEGORY\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Category, t.Title)
	}
	return tw.Flush()
}

func printTask(out io.Writer, t task.Task, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(out).Encode(t)
	}
	fmt.Fprintf(out, "%s %q [%s] %s/%s\n", t.ID, t.Title, t.Status, t.Priority, t.Category)
	if t.Description != "" {
		fmt.Fprintf(out, "  %s\n", t.Description)
	}
	for _, a := range t.Attachments {
		fmt.Fprintf(out, "  - %s: %s\n", a.Name, a.URL)
	}
	return nil
}

func printStats(out io.Writer, s task.Stats, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(out).Encode(s)
	}
	fmt.Fprintf(out, "todo:        %d\n", s.TodoCount)
	fmt.Fprintf(out, "in-progress: %d\n", s.InProgressCount)
	fmt.Fprintf(out, "done:        %d\n", s.DoneCount)
	fmt.Fprintf(out, "total:       %d\n", s.TotalCount)
	fmt.Fprintf(out, "completion:  %.0f%%\n", s.CompletionRate)
	return nil
}
