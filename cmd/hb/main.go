package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"habitbuilder/internal/calendar"
	"habitbuilder/internal/config"
	"habitbuilder/internal/db"
	"habitbuilder/internal/domain"
	"habitbuilder/internal/engine"
	"habitbuilder/internal/migrate"
	"habitbuilder/internal/repo"
	"habitbuilder/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hb",
	Short: "HabitBuilder CLI",
	Long: `HabitBuilder tracks dated tasks and weekly routines and shows how each
category of your life is going.

- Workspace: the .habitbuilder directory holding the database.
- Task: one dated record with a name, a category and a status (0-100).
- Routine: a weekly task; creating one materializes an instance per week,
  each starting at status 0.
- Week: the dashboard window runs Sunday through Friday.
- Progress: the average status per category over a date range.
- Event log: diary of changes, view with 'hb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HABITBUILDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskRoutineCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var name, category, date string
	var status int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := optionalDate(date)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Name:      name,
					Category:  category,
					Status:    clampStatus(status),
					CreatedAt: day,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&category, "category", "", "task category")
	cmd.Flags().IntVar(&status, "status", 0, "completion status 0-100")
	cmd.Flags().StringVar(&date, "date", "", "creation date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func taskListCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := rangeOrCurrentWeek(start, end)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListRange(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "range start YYYY-MM-DD (default current week)")
	cmd.Flags().StringVar(&end, "end", "", "range end YYYY-MM-DD (default current week)")
	return cmd
}

func taskEditCmd() *cobra.Command {
	var name, category string
	var status int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				current, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				if name == "" {
					name = current.Name
				}
				if category == "" {
					category = current.Category
				}
				if !cmd.Flags().Changed("status") {
					status = current.Status
				}
				t, err := e.UpdateTask(ctx, id, engine.TaskUpdateOptions{
					Name:     name,
					Category: category,
					Status:   clampStatus(status),
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().IntVar(&status, "status", 0, "new status 0-100")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, id, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deleted task", id)
				return nil
			})
		},
	}
	return cmd
}

func taskRoutineCmd() *cobra.Command {
	var name, category, start, end string
	cmd := &cobra.Command{
		Use:   "routine",
		Short: "Create a weekly routine",
		Long:  "Materializes one task per week from the start date through the end date. Every instance starts at status 0.",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDay, err := calendar.Parse(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			var endDay *calendar.Date
			if end != "" {
				d, err := calendar.Parse(end)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				endDay = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.CreateRoutine(ctx, engine.RoutineCreateOptions{
					Name:      name,
					Category:  category,
					StartDate: startDay,
					Routine:   true,
					EndDate:   endDay,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					if n > 0 {
						return fmt.Errorf("routine aborted after %d created tasks: %w", n, err)
					}
					return err
				}
				fmt.Printf("created %d tasks\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "routine name")
	cmd.Flags().StringVar(&category, "category", "", "routine category")
	cmd.Flags().StringVar(&start, "start", "", "first occurrence YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last possible occurrence YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func weekCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Weekly dashboard",
		Long:  "Shows the tasks of the week containing the given date (Sunday through Friday) and the average status per category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := time.Now()
			if date != "" {
				day, err := calendar.Parse(date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				ref = day.Time()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, window, err := e.ListWeek(ctx, ref)
				if err != nil {
					return err
				}
				averages, err := e.Progress(ctx, window.StartDate(), window.EndDate())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"start":    window.StartDate(),
						"end":      window.EndDate(),
						"tasks":    tasks,
						"averages": averages,
					})
				}
				fmt.Printf("Week %s .. %s\n", window.StartDate(), window.EndDate())
				renderTaskTable(tasks)
				renderAverageTable(averages)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "any date inside the week YYYY-MM-DD (default today)")
	return cmd
}

func progressCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Average status per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := rangeOrCurrentWeek(start, end)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				averages, err := e.Progress(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(averages)
				}
				renderAverageTable(averages)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "range start YYYY-MM-DD (default current week)")
	cmd.Flags().StringVar(&end, "end", "", "range end YYYY-MM-DD (default current week)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task creations, edits, deletions and routines.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	var entityID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, repo.EventFilters{
					Type:     evtType,
					EntityID: entityID,
					Limit:    n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "task id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			logger := newLogger(cfg.Log.Level)
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving HabitBuilder API")
			fmt.Printf("Serving HabitBuilder API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// clampStatus bounds interactive input to the 0-100 range the dashboard
// expects. The store itself does not enforce the bound.
func clampStatus(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func optionalDate(s string) (calendar.Date, error) {
	if s == "" {
		return calendar.Date{}, nil
	}
	d, err := calendar.Parse(s)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("--date: %w", err)
	}
	return d, nil
}

// rangeOrCurrentWeek parses both bounds, defaulting to the current
// Sunday-through-Friday window when neither is given.
func rangeOrCurrentWeek(start, end string) (calendar.Date, calendar.Date, error) {
	if start == "" && end == "" {
		window := calendar.ComputeWeek(time.Now())
		return window.StartDate(), window.EndDate(), nil
	}
	if start == "" || end == "" {
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("--start and --end must be given together")
	}
	from, err := calendar.Parse(start)
	if err != nil {
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("--start: %w", err)
	}
	to, err := calendar.Parse(end)
	if err != nil {
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("--end: %w", err)
	}
	return from, to, nil
}

func renderTaskTable(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Category", "Status", "Created"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Category, t.Status, t.CreatedAt.String()})
	}
	tw.Render()
}

func renderAverageTable(averages []domain.CategoryAverage) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Category", "Average Status"})
	for _, a := range averages {
		tw.AppendRow(table.Row{a.Category, fmt.Sprintf("%.1f", a.AverageStatus)})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
