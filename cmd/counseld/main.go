package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"counseld-go/internal/app"
	"counseld-go/internal/config"
	"counseld-go/internal/counsel"
	"counseld-go/internal/temporal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CounselApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "SubmitRequest", "BackupNow").
func newApp(operation string) (*app.CounselApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	a, err := app.NewCounselApp(defaults["config_path"], operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptSecret reads a line from the terminal without echoing it.
func promptSecret(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func scopeFromFlags(cmd *cobra.Command) (counsel.Scope, error) {
	grade, _ := cmd.Flags().GetInt("grade")
	class, _ := cmd.Flags().GetInt("class")
	if grade == 0 || class == 0 {
		return counsel.Scope{}, fmt.Errorf("--grade and --class are required")
	}
	return counsel.Scope{Grade: grade, Class: class}, nil
}

var rootCmd = &cobra.Command{
	Use:   "counseld",
	Short: "School counseling request tracker",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Backup Dir:  %s\n", cfg.Backup.Dir)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the artifact encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor == nil {
			return fmt.Errorf("encryption is not enabled in the config")
		}
		if a.Encryptor.IsConfigured() {
			return fmt.Errorf("key pair already exists")
		}

		passphrase, err := promptSecret("Passphrase")
		if err != nil {
			return err
		}
		confirm, err := promptSecret("Confirm passphrase")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Key pair generated.")
		return nil
	},
}

// request command
var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage counseling requests",
}

var requestAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Submit a counseling request",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SubmitRequest")
		if err != nil {
			return err
		}
		defer a.Close()

		grade, _ := cmd.Flags().GetInt("grade")
		class, _ := cmd.Flags().GetInt("class")
		number, _ := cmd.Flags().GetInt("number")
		name, _ := cmd.Flags().GetString("name")
		topic, _ := cmd.Flags().GetString("topic")
		customTopic, _ := cmd.Flags().GetString("custom-topic")
		content, _ := cmd.Flags().GetString("content")
		guardian, _ := cmd.Flags().GetBool("guardian")
		relation, _ := cmd.Flags().GetString("relation")
		contact, _ := cmd.Flags().GetString("contact")

		secret, err := promptSecret("Secret")
		if err != nil {
			return err
		}

		r, err := a.Service.SubmitRequest(counsel.Submission{
			Grade: grade, Class: class, Number: number,
			Name: name, Secret: secret,
			Topic: topic, CustomTopic: customTopic, Content: content,
			Guardian: guardian, Relation: relation, Contact: contact,
		})
		if err != nil {
			return fmt.Errorf("submitting request: %w", err)
		}

		fmt.Printf("Request #%d submitted at %s\n", r.ID, r.Date)
		return nil
	},
}

var requestEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a request's topic and content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id: %s", args[0])
		}

		a, err := newApp("EditRequest")
		if err != nil {
			return err
		}
		defer a.Close()

		topic, _ := cmd.Flags().GetString("topic")
		customTopic, _ := cmd.Flags().GetString("custom-topic")
		content, _ := cmd.Flags().GetString("content")

		if err := a.Service.EditRequest(id, topic, customTopic, content); err != nil {
			return fmt.Errorf("editing request: %w", err)
		}

		fmt.Printf("Request #%d updated\n", id)
		return nil
	},
}

var requestDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a request and its logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id: %s", args[0])
		}

		a, err := newApp("DeleteRequest")
		if err != nil {
			return err
		}
		defer a.Close()

		secret, err := promptSecret("Secret")
		if err != nil {
			return err
		}

		if err := a.Service.DeleteRequest(id, secret); err != nil {
			return fmt.Errorf("deleting request: %w", err)
		}

		fmt.Printf("Request #%d deleted\n", id)
		return nil
	},
}

var requestSetDateCmd = &cobra.Command{
	Use:   "set-date ID DATE",
	Short: "Rewrite a request's creation timestamp",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id: %s", args[0])
		}

		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UpdateRequestDate")
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, err := a.Service.UpdateRequestDate(id, scope, args[1])
		if err != nil {
			return fmt.Errorf("updating date: %w", err)
		}

		switch outcome {
		case temporal.OutcomeExact:
			fmt.Println("Date updated.")
		case temporal.OutcomeCorrected:
			fmt.Println("Date updated (input was auto-corrected).")
		case temporal.OutcomeFallback:
			fmt.Println("Date could not be parsed; current time was used.")
		}
		return nil
	},
}

var requestMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Look up your own requests and answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("OwnerRequests")
		if err != nil {
			return err
		}
		defer a.Close()

		grade, _ := cmd.Flags().GetInt("grade")
		class, _ := cmd.Flags().GetInt("class")
		number, _ := cmd.Flags().GetInt("number")
		name, _ := cmd.Flags().GetString("name")

		secret, err := promptSecret("Secret")
		if err != nil {
			return err
		}

		rows, err := a.Service.OwnerRequests(counsel.Owner{
			Grade: grade, Class: class, Number: number,
			Name: name, Secret: secret,
		})
		if err != nil {
			return fmt.Errorf("looking up requests: %w", err)
		}

		if len(rows) == 0 {
			fmt.Println("No requests found.")
			return nil
		}
		for _, r := range rows {
			status := "pending"
			if r.Answered {
				status = "answered"
			}
			fmt.Printf("#%d  %s  %-12s  %s\n", r.ID, r.Date, r.Topic, status)
			if r.Answered {
				fmt.Printf("    answer: %s\n", r.Answer)
			}
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests for a class",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ListRequests")
		if err != nil {
			return err
		}
		defer a.Close()

		number, _ := cmd.Flags().GetInt("number")
		name, _ := cmd.Flags().GetString("name")
		topic, _ := cmd.Flags().GetString("topic")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		page, _ := cmd.Flags().GetInt("page")

		parser := temporal.New(nil)
		f := counsel.Filters{Number: number, Name: name, Topic: topic}
		if fromStr != "" {
			t, ok := parser.Parse(fromStr)
			if !ok {
				return fmt.Errorf("invalid --from value: %s", fromStr)
			}
			f.From = &t
		}
		if toStr != "" {
			t, ok := parser.Parse(toStr)
			if !ok {
				return fmt.Errorf("invalid --to value: %s", toStr)
			}
			f.To = &t
		}

		pg, err := a.Service.ListRequests(scope, f, page, a.Config.List.PerPage)
		if err != nil {
			return fmt.Errorf("listing requests: %w", err)
		}

		if len(pg.Items) == 0 {
			fmt.Println("No requests found.")
			return nil
		}
		for _, r := range pg.Items {
			marks := " "
			if r.Answered {
				marks = "A"
			}
			if r.Guardian {
				marks += "G"
			}
			fmt.Printf("#%-4d %s  %d-%d-%02d  %-10s  %-12s  %s\n",
				r.ID, r.Date, r.Grade, r.Class, r.Number, r.Name, r.Topic, marks)
		}
		fmt.Printf("\nPage %d of %d\n", pg.Page, pg.PageCount)
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log REQUEST_ID",
	Short: "Write or update the counseling log for a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id: %s", args[0])
		}

		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("WriteLog")
		if err != nil {
			return err
		}
		defer a.Close()

		teacher, _ := cmd.Flags().GetString("teacher")
		memo, _ := cmd.Flags().GetString("memo")
		date, _ := cmd.Flags().GetString("date")

		if err := a.Service.WriteLog(id, scope, teacher, memo, date); err != nil {
			return fmt.Errorf("writing log: %w", err)
		}

		fmt.Printf("Log recorded for request #%d\n", id)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the statistics report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Statistics")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Service.Statistics()
		if err != nil {
			return fmt.Errorf("computing statistics: %w", err)
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database snapshots",
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Take a snapshot immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupNow")
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.Scheduler.BackupNow()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Snapshot written: %s\n", name)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local snapshot artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupList")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := os.ReadDir(a.Config.Backup.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No snapshots yet.")
				return nil
			}
			return fmt.Errorf("listing backups: %w", err)
		}

		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".db") {
				names = append(names, e.Name())
			}
		}
		if len(names) == 0 {
			fmt.Println("No snapshots yet.")
			return nil
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var backupStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupState")
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.Scheduler.State()
		fmt.Printf("Dirty:       %v\n", st.Dirty)
		if !st.LastChangeAt.IsZero() {
			fmt.Printf("Last change: %s\n", st.LastChangeAt.Format(time.RFC3339))
		}
		if !st.LastBackupAt.IsZero() {
			fmt.Printf("Last backup: %s (%s)\n", st.LastBackupAt.Format(time.RFC3339), st.LastBackupFile)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Run")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Scheduler running. Ctrl-C to stop.")
		a.Scheduler.Run(ctx)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	requestCmd.AddCommand(requestAddCmd)
	requestAddCmd.Flags().Int("grade", 0, "Grade")
	requestAddCmd.Flags().Int("class", 0, "Class number")
	requestAddCmd.Flags().Int("number", 0, "Student number")
	requestAddCmd.Flags().String("name", "", "Student name")
	requestAddCmd.Flags().String("topic", "other", "Topic")
	requestAddCmd.Flags().String("custom-topic", "", "Custom topic when --topic=other")
	requestAddCmd.Flags().String("content", "", "Request content")
	requestAddCmd.Flags().Bool("guardian", false, "Submit on behalf of the student")
	requestAddCmd.Flags().String("relation", "", "Guardian relation to the student")
	requestAddCmd.Flags().String("contact", "", "Guardian contact")

	requestCmd.AddCommand(requestEditCmd)
	requestEditCmd.Flags().String("topic", "", "New topic (blank keeps current)")
	requestEditCmd.Flags().String("custom-topic", "", "Custom topic when --topic=other")
	requestEditCmd.Flags().String("content", "", "New content (blank keeps current)")

	requestCmd.AddCommand(requestDeleteCmd)

	requestCmd.AddCommand(requestSetDateCmd)
	requestSetDateCmd.Flags().Int("grade", 0, "Scope grade")
	requestSetDateCmd.Flags().Int("class", 0, "Scope class")

	requestCmd.AddCommand(requestMineCmd)
	requestMineCmd.Flags().Int("grade", 0, "Grade")
	requestMineCmd.Flags().Int("class", 0, "Class number")
	requestMineCmd.Flags().Int("number", 0, "Student number")
	requestMineCmd.Flags().String("name", "", "Student name")

	listCmd.Flags().Int("grade", 0, "Scope grade")
	listCmd.Flags().Int("class", 0, "Scope class")
	listCmd.Flags().Int("number", 0, "Filter by student number")
	listCmd.Flags().String("name", "", "Filter by student name")
	listCmd.Flags().String("topic", "", "Filter by topic")
	listCmd.Flags().String("from", "", "Filter from timestamp (YYYY-MM-DD HH:MM)")
	listCmd.Flags().String("to", "", "Filter to timestamp, inclusive (YYYY-MM-DD HH:MM)")
	listCmd.Flags().IntP("page", "p", 1, "Page number")

	logCmd.Flags().Int("grade", 0, "Scope grade")
	logCmd.Flags().Int("class", 0, "Scope class")
	logCmd.Flags().String("teacher", "", "Teacher name")
	logCmd.Flags().String("memo", "", "Counseling memo")
	logCmd.Flags().String("date", "", "Log timestamp (YYYY-MM-DDTHH:MM, blank for now)")

	backupCmd.AddCommand(backupNowCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupStateCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(runCmd)
}
