package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bpdcentral/internal/config"
	"bpdcentral/internal/db"
	"bpdcentral/internal/events"
	"bpdcentral/internal/migrate"
	"bpdcentral/internal/repo"
	"bpdcentral/internal/seed"
	"bpdcentral/internal/server"
	"bpdcentral/internal/statesync"
	"bpdcentral/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "bpd",
	Short: "BPD Central CLI",
	Long: `BPD Central tracks grant program work for the broadband policy team.
All views render the same synchronized snapshot: every change writes through
to the remote store and the snapshot is refetched in full, so the store is
always the source of truth. Without store credentials the CLI falls back to
a built-in local data set; reads work, writes are disabled.

Connectivity indicator:
  CLOUD SYNC ACTIVE  connected to the remote store
  LOCAL CACHE MODE   credentials present but the store is unreachable
  MISSING API KEYS   no credentials configured ('bpd settings set-credentials')`,
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
	viper.SetEnvPrefix("BPD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("store-url", "", "store base URL (overrides saved credentials)")
	rootCmd.PersistentFlags().String("store-key", "", "store access key (overrides saved credentials)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("store-url", rootCmd.PersistentFlags().Lookup("store-url"))
	_ = viper.BindPFlag("store-key", rootCmd.PersistentFlags().Lookup("store-key"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(kanbanCmd())
	rootCmd.AddCommand(programCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var seedStore bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the remote store HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if seedStore {
				if err := loadSeed(cmd.Context(), conn); err != nil {
					return err
				}
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BPD_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BPD_JWT_SECRET is required for access-key auth")
			}
			handler, err := server.New(server.Config{DB: conn, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving BPD Central store on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&seedStore, "seed", false, "load the built-in data set into an empty store")
	return cmd
}

// loadSeed fills an empty store with the built-in data set. A store that
// already holds tasks is left alone.
func loadSeed(ctx context.Context, conn *sql.DB) error {
	r := repo.Repo{DB: conn}
	existing, err := r.ListTasks(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	data := seed.State()
	ew := events.Writer{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, p := range data.Programs {
		if err := r.InsertProgramTx(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, u := range data.Users {
		if err := r.InsertUserTx(ctx, tx, u); err != nil {
			return err
		}
	}
	for _, t := range data.Tasks {
		if err := r.InsertTaskTx(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := ew.Append(ctx, tx, "store.seeded", "store", "", "", nil); err != nil {
		return err
	}
	return tx.Commit()
}

func keygenCmd() *cobra.Command {
	var role, secret string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Mint a store access key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("BPD_JWT_SECRET")
			}
			key, err := server.SignAnonKey(secret, role)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"role": role, "key": key})
			}
			fmt.Println(key)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", server.RoleAnon, "key role (anon, service_role)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to BPD_JWT_SECRET)")
	return cmd
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "settings",
		Short: "Workspace settings and store credentials",
	}
	s.AddCommand(settingsShowCmd())
	s.AddCommand(settingsUseCmd())
	s.AddCommand(settingsSetCredentialsCmd())
	s.AddCommand(settingsClearCredentialsCmd())
	return s
}

func settingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show workspace settings and connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				workspace := viper.GetString("workspace")
				state := svc.Snapshot()
				currentUser := ""
				if state.CurrentUser != nil {
					currentUser = fmt.Sprintf("%s (%s)", state.CurrentUser.Name, state.CurrentUser.ID)
				}
				out := map[string]any{
					"workspace":       workspace,
					"credentialsFile": config.OverridePath(workspace),
					"hasCredentials":  svc.HasCredentials(),
					"connected":       svc.IsConnected(),
					"mode":            connectivityLine(svc),
					"currentUser":     currentUser,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Workspace:    %s\n", workspace)
				fmt.Printf("Credentials:  %s (present: %v)\n", config.OverridePath(workspace), svc.HasCredentials())
				fmt.Printf("Mode:         %s\n", connectivityLine(svc))
				fmt.Printf("Current user: %s\n", currentUser)
				return nil
			})
		},
	}
	return cmd
}

func settingsUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <user-id>",
		Short: "Set the acting user for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return fmt.Errorf("user id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "BPD_CURRENT_USER", userID); err != nil {
				return err
			}
			fmt.Printf("Set BPD_CURRENT_USER=%s in %s/.env\n", userID, workspace)
			return nil
		},
	}
	return cmd
}

func settingsSetCredentialsCmd() *cobra.Command {
	var url, key string
	cmd := &cobra.Command{
		Use:   "set-credentials",
		Short: "Persist store credentials and reconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" || key == "" {
				return fmt.Errorf("--url and --key required")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				connected := svc.SaveCredentials(ctx, url, key)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"saved": true, "connected": connected})
				}
				if connected {
					fmt.Println("Credentials saved. CLOUD SYNC ACTIVE")
				} else {
					fmt.Println("Credentials saved, but the store is unreachable. LOCAL CACHE MODE")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "store base URL")
	cmd.Flags().StringVar(&key, "key", "", "store access key")
	return cmd
}

func settingsClearCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-credentials",
		Short: "Erase saved credentials and reset to the local data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *statesync.Service) error {
				svc.ClearCredentials()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"cleared": true})
				}
				fmt.Println("Credentials cleared. MISSING API KEYS")
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Store change log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent store changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := config.Resolve(viper.GetString("workspace"), viper.GetString("store-url"), viper.GetString("store-key"))
			if !creds.Present() {
				return fmt.Errorf("store credentials required ('bpd settings set-credentials')")
			}
			client := store.New(creds.URL, creds.AnonKey)
			evts, err := client.Events(cmd.Context(), n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(evts)
			}
			renderEvents(evts)
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

// --- helpers ---

// withService spins up the state sync layer: seed first, then connect with
// whatever credentials resolve. Explicit --store-url/--store-key flags force
// a reconnect with that pair.
func withService(ctx context.Context, fn func(context.Context, *statesync.Service) error) error {
	workspace := viper.GetString("workspace")
	svc := statesync.New(workspace)
	defer svc.Close()
	svc.Initialize(ctx, seed.State())
	flagURL := strings.TrimSpace(viper.GetString("store-url"))
	flagKey := strings.TrimSpace(viper.GetString("store-key"))
	if flagURL != "" && flagKey != "" {
		svc.Reconnect(ctx, flagURL, flagKey)
	}
	if userID := currentUserID(workspace); userID != "" {
		svc.SetCurrentUser(userID)
	}
	return fn(ctx, svc)
}

// currentUserID reads the acting user from the environment or the workspace
// .env file written by 'bpd settings use'.
func currentUserID(workspace string) string {
	if v := strings.TrimSpace(os.Getenv("BPD_CURRENT_USER")); v != "" {
		return v
	}
	return readEnvValue(filepath.Join(workspace, ".env"), "BPD_CURRENT_USER")
}

func connectivityLine(svc *statesync.Service) string {
	switch {
	case svc.IsConnected():
		return "CLOUD SYNC ACTIVE"
	case svc.HasCredentials():
		return "LOCAL CACHE MODE"
	default:
		return "MISSING API KEYS"
	}
}

func printConnectivity(svc *statesync.Service) {
	fmt.Printf("[%s]\n", connectivityLine(svc))
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

func readEnvValue(path, key string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, key+"=") {
			return strings.TrimSpace(strings.TrimPrefix(line, key+"="))
		}
	}
	return ""
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
