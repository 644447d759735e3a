// Package admincli implements the operator commands of cmd/admin: bootstrap
// an admin account, change roles and list accounts directly against the
// credential store.
package admincli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
)

const usage = `usage: admin <command> [flags]

commands:
  create-admin               create a verified admin account (interactive)
  set-role <username> <role> change the role of an account (user, author, admin)
  list                       list all accounts
`

var ErrUsage = errors.New("invalid usage")

type newAdmin struct {
	Username string `validate:"required,min=3,max=20"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type App struct {
	users    users.Repository
	hasher   auth.Hasher
	in       *bufio.Reader
	out      io.Writer
	validate *validator.Validate
}

func New(repo users.Repository, hasher auth.Hasher, in io.Reader, out io.Writer) *App {
	return &App{
		users:    repo,
		hasher:   hasher,
		in:       bufio.NewReader(in),
		out:      out,
		validate: validator.New(),
	}
}

// Run executes the command named by args[0]. Flags after the command are
// ignored here; they belong to the config layer.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "create-admin":
		return a.createAdmin(ctx)
	case "set-role":
		if len(args) < 3 {
			fmt.Fprint(a.out, usage)
			return ErrUsage
		}
		return a.setRole(ctx, args[1], args[2])
	case "list":
		return a.list(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", args[0], usage)
		return ErrUsage
	}
}

func (a *App) createAdmin(ctx context.Context) error {
	var in newAdmin
	var err error

	if in.Username, err = GetSimpleText(a.in, "Username", a.out); err != nil {
		return err
	}
	if in.Email, err = GetSimpleText(a.in, "Email", a.out); err != nil {
		return err
	}
	if in.Password, err = GetPassword("Password", a.out); err != nil {
		return err
	}
	confirm, err := GetPassword("Repeat password", a.out)
	if err != nil {
		return err
	}
	if confirm != in.Password {
		return errors.New("passwords do not match")
	}

	if err := a.validate.Struct(in); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	u, err := a.users.Create(ctx, &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: &hash,
		Role:         access.RoleAdmin,
		IsVerified:   true,
	})
	if err != nil {
		if field := users.DuplicateField(err); field != "" {
			return fmt.Errorf("%s already in use", field)
		}
		return err
	}

	fmt.Fprintf(a.out, "created admin %s (%s)\n", u.Username, u.ID)
	return nil
}

func (a *App) setRole(ctx context.Context, username, role string) error {
	r, ok := access.ParseRole(role)
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}

	u, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	if _, err := a.users.SetRole(ctx, u.ID, r); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s is now %s\n", username, r)
	return nil
}

func (a *App) list(ctx context.Context) error {
	list, err := a.users.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tEMAIL\tROLE\tVERIFIED")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", u.Username, u.Email, u.Role, u.IsVerified)
	}
	return tw.Flush()
}
