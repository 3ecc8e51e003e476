// Package main содержит клиент командной строки рабочей станции: вход в
// учётную запись, активацию и проверку лицензии этой машины.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/magabrotheeeer/multiverse-license/internal/client"
	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

const usage = `usage: licensectl <command> [flags]

commands:
  register    -email E [-password P]  create an account
  login       -email E [-password P]  sign in and store the refresh token
  validate                            check the license of this machine
  activate    [-plan P]               activate a license on this machine
  forgot      -email E                request a password reset email
  logout                              remove the stored refresh token
  machine-id                          print the identifier of this machine
`

func main() {
	logger := sl.SetupLogger(os.Getenv("APP_ENV"), os.Stderr)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("licensectl failed", slog.String("command", os.Args[1]), sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, in io.Reader, out io.Writer) error {
	if cmd == "machine-id" {
		fmt.Fprintln(out, client.MachineID())
		return nil
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	api := client.NewAPI(cfg.ServerURL, cfg.Timeout)

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password, falls back to MULTIVERSE_PASSWORD, then stdin")
	plan := fs.String("plan", "", "subscription plan, defaults to the active subscription")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "register", "login":
		if *email == "" {
			return errors.New("-email is required")
		}
		if *password == "" {
			*password = os.Getenv("MULTIVERSE_PASSWORD")
		}
		if *password == "" {
			if *password, err = readPassword(in, out); err != nil {
				return err
			}
		}
		if cmd == "register" {
			if err := api.Register(ctx, *email, *password); err != nil {
				return err
			}
			fmt.Fprintln(out, "registered", *email)
			return nil
		}
		session, err := newSession(cfg, api)
		if err != nil {
			return err
		}
		if err := session.Login(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Fprintln(out, "logged in as", *email)
		return nil

	case "forgot":
		if *email == "" {
			return errors.New("-email is required")
		}
		if err := api.ForgotPassword(ctx, *email); err != nil {
			return err
		}
		fmt.Fprintln(out, "if the account exists, a reset link has been sent")
		return nil

	case "validate":
		session, err := newSession(cfg, api)
		if err != nil {
			return err
		}
		info, err := session.Validate(ctx, client.MachineID())
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(out, "license %s until %s\n", info.Status, info.Expires.Format("2006-01-02"))
		return nil

	case "activate":
		session, err := newSession(cfg, api)
		if err != nil {
			return err
		}
		info, err := session.Activate(ctx, client.MachineID(), *plan)
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(out, "license %s activated until %s\n", info.Plan, info.Expires.Format("2006-01-02"))
		return nil

	case "logout":
		session, err := newSession(cfg, api)
		if err != nil {
			return err
		}
		if err := session.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "logged out")
		return nil
	}

	fmt.Fprint(out, usage)
	return flag.ErrHelp
}

func newSession(cfg *config.Client, api *client.API) (*client.Session, error) {
	key, err := client.LoadKey(cfg.TokenKey, cfg.KeyPath())
	if err != nil {
		return nil, err
	}
	store, err := client.NewTokenStore(cfg.TokenPath(), key)
	if err != nil {
		return nil, err
	}
	return client.NewSession(api, store), nil
}

// explain добавляет подсказку к типовым отказам сервера.
func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrNoToken), errors.Is(err, client.ErrTokenUnreadable),
		client.IsStatus(err, http.StatusUnauthorized):
		return fmt.Errorf("%w (run licensectl login)", err)
	case client.IsStatus(err, http.StatusNotFound):
		return fmt.Errorf("%w (run licensectl activate)", err)
	}
	return err
}

// readPassword читает пароль без эха, если stdin это терминал, иначе
// первую строку входа.
func readPassword(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "password: ")
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		if len(raw) == 0 {
			return "", errors.New("empty password")
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
