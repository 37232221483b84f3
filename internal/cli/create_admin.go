package cli

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	"github.com/mrlokans/library/internal/entities"
)

// CreateAdminCommand creates an administrator account without going through
// the web setup page.
type CreateAdminCommand struct {
	Username string
	Email    string
	Password string

	cfg   *config.Config
	stdin *bufio.Reader
}

func NewCreateAdminCommand(cfg *config.Config) *CreateAdminCommand {
	return &CreateAdminCommand{cfg: cfg, stdin: bufio.NewReader(os.Stdin)}
}

func (cmd *CreateAdminCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)

	fs.StringVar(&cmd.Username, "username", "", "Administrator username (required)")
	fs.StringVar(&cmd.Email, "email", "", "Administrator email (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password; read from ADMIN_PASSWORD or stdin when omitted")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-admin -username <name> -email <address> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create an administrator account in the configured database.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" {
		return fmt.Errorf("required flag -username not provided")
	}
	if cmd.Email == "" {
		return fmt.Errorf("required flag -email not provided")
	}
	if cmd.Password == "" {
		cmd.Password = os.Getenv("ADMIN_PASSWORD")
	}
	return nil
}

func (cmd *CreateAdminCommand) Run() error {
	if cmd.Password == "" {
		fmt.Print("Password: ")
		line, err := cmd.stdin.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		cmd.Password = strings.TrimRight(line, "\r\n")
	}

	db, err := database.NewDatabase(cmd.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := auth.NewService(db.DB, cmd.cfg.Auth).CreateUser(cmd.Username, cmd.Email, cmd.Password, entities.UserRoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to create administrator: %w", err)
	}

	fmt.Printf("Created administrator %q (id %d)\n", user.Username, user.ID)
	return nil
}
