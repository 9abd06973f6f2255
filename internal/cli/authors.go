package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/minhngt/harvester/internal/core/config"
	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/infra/storage"
	"github.com/minhngt/harvester/internal/infra/storage/postgres"
)

var (
	authorDisplayName string
	authorPriority    int
	authorNotes       string
	authorInactive    bool
)

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "Manage tracked authors",
}

var authorsAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a new tracked author",
	Args:  cobra.ExactArgs(1),
	Run:   runAuthorsAdd,
}

var authorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tracked authors",
	Run:   runAuthorsList,
}

var authorsSetCmd = &cobra.Command{
	Use:   "set <username>",
	Short: "Update a tracked author",
	Args:  cobra.ExactArgs(1),
	Run:   runAuthorsSet,
}

func init() {
	authorsAddCmd.Flags().StringVar(&authorDisplayName, "display-name", "", "display name")
	authorsAddCmd.Flags().IntVar(&authorPriority, "priority", 0, "fetch priority, higher first")
	authorsAddCmd.Flags().StringVar(&authorNotes, "notes", "", "free-form notes")

	authorsSetCmd.Flags().StringVar(&authorDisplayName, "display-name", "", "display name")
	authorsSetCmd.Flags().IntVar(&authorPriority, "priority", 0, "fetch priority, higher first")
	authorsSetCmd.Flags().StringVar(&authorNotes, "notes", "", "free-form notes")
	authorsSetCmd.Flags().BoolVar(&authorInactive, "inactive", false, "exclude from crawl cycles")

	authorsCmd.AddCommand(authorsAddCmd, authorsListCmd, authorsSetCmd)
	rootCmd.AddCommand(authorsCmd)
}

// openAuthorRepo connects to the configured database. Author management is
// only meaningful against a durable store.
func openAuthorRepo() (storage.AuthorRepository, func(), *slog.Logger) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger("")
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := initLogger(cfg.Logging.Level)

	if cfg.Database.URL == "" {
		log.Error("authors commands require a database URL")
		os.Exit(1)
	}

	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return postgres.NewAuthorRepo(db), func() { _ = db.Close() }, log
}

func runAuthorsAdd(cmd *cobra.Command, args []string) {
	repo, closeDB, log := openAuthorRepo()
	defer closeDB()

	added, err := repo.Add(context.Background(), &domain.TrackedAuthor{
		Username:    args[0],
		DisplayName: authorDisplayName,
		Priority:    authorPriority,
		Active:      true,
		Notes:       authorNotes,
	})
	if err != nil {
		log.Error("Failed to add author", "error", err)
		os.Exit(1)
	}
	if !added {
		fmt.Printf("author %s already tracked\n", args[0])
		return
	}
	fmt.Printf("tracking %s\n", args[0])
}

func runAuthorsList(cmd *cobra.Command, args []string) {
	repo, closeDB, log := openAuthorRepo()
	defer closeDB()

	authors, err := repo.List(context.Background())
	if err != nil {
		log.Error("Failed to list authors", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "USERNAME\tPRIORITY\tACTIVE\tLAST FETCHED")
	for _, a := range authors {
		last := "never"
		if a.LastFetchedAt != nil {
			last = a.LastFetchedAt.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", a.Username, a.Priority, a.Active, last)
	}
	_ = w.Flush()
}

func runAuthorsSet(cmd *cobra.Command, args []string) {
	repo, closeDB, log := openAuthorRepo()
	defer closeDB()

	var update domain.AuthorUpdate
	if cmd.Flags().Changed("display-name") {
		update.DisplayName = &authorDisplayName
	}
	if cmd.Flags().Changed("priority") {
		update.Priority = &authorPriority
	}
	if cmd.Flags().Changed("notes") {
		update.Notes = &authorNotes
	}
	if cmd.Flags().Changed("inactive") {
		active := !authorInactive
		update.Active = &active
	}
	if update.Empty() {
		fmt.Println("nothing to update")
		return
	}

	if err := repo.Update(context.Background(), args[0], update); err != nil {
		log.Error("Failed to update author", "author", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Printf("updated %s\n", args[0])
}
