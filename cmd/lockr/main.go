// Command lockr is a terminal client for a lockr vault service.
//
// Device identity and the vault unlock secret live in a sealed file opened
// with a device passphrase. Every start re-challenges MFA for a known device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/MrEthical07/lockr"
	"github.com/MrEthical07/lockr/api"
	"github.com/MrEthical07/lockr/internal/env"
	"github.com/MrEthical07/lockr/internal/logging"
	"github.com/MrEthical07/lockr/keystore/filestore"
	"github.com/MrEthical07/lockr/secret"
)

var errQuit = errors.New("quit")

func main() {
	if err := run(); err != nil && !errors.Is(err, errQuit) {
		fmt.Fprintln(os.Stderr, "lockr:", err)
		os.Exit(1)
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "lockr.state"
	}
	return filepath.Join(dir, "lockr", "device.sealed")
}

func run() error {
	var (
		baseURL   = flag.String("url", "", "service base URL (default LOCKR_BASE_URL)")
		statePath = flag.String("state", env.String("LOCKR_STATE_FILE", defaultStatePath()), "sealed device state file")
	)
	flag.Parse()

	log := logging.New(os.Stderr, logging.FormatText, env.String("LOCKR_LOG_LEVEL", "warn"))

	cfg := lockr.LoadConfigFromEnv()
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}

	p := newPrompter(os.Stdin, os.Stdout)
	passphrase, err := p.hidden("Device passphrase: ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*statePath), 0o700); err != nil {
		return err
	}
	keys, err := filestore.Open(filestore.Config{Path: *statePath, Passphrase: []byte(passphrase)})
	if err != nil {
		return err
	}

	c, err := lockr.New().
		WithConfig(cfg).
		WithKeyStore(keys).
		WithAuthenticator(secret.NoHardware{}).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	route, err := lockr.NewBootstrapRouter(c).Start(ctx)
	if err != nil {
		return err
	}
	cli := &cli{c: c, p: p, out: os.Stdout, userID: route.UserID}
	return cli.loop(ctx)
}

type cli struct {
	c      *lockr.Controller
	p      *prompter
	out    io.Writer
	userID string
}

func (x *cli) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch lockr.RouteFor(x.c.State()) {
		case lockr.StepLogin:
			// Registration leaves the state at login with a pending user.
			if x.userID != "" {
				err = x.mfa(ctx)
			} else {
				err = x.login(ctx)
			}
		case lockr.StepMFA:
			err = x.mfa(ctx)
		case lockr.StepSecretSetup:
			err = x.secretSetup(ctx)
		case lockr.StepUnlock:
			err = x.unlock(ctx)
		case lockr.StepVault:
			err = x.vault(ctx)
		}
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			return errQuit
		}
		if err != nil {
			fmt.Fprintln(x.out, lockr.DisplayMessage(err))
		}
	}
}

func (x *cli) login(ctx context.Context) error {
	mode, err := x.p.line("[l]ogin, [r]egister or [q]uit: ")
	if err != nil {
		return err
	}
	if mode == "q" {
		return errQuit
	}
	email, err := x.p.line("Email: ")
	if err != nil {
		return err
	}
	password, err := x.p.hidden("Password: ")
	if err != nil {
		return err
	}

	if mode == "r" {
		enr, err := x.c.SubmitRegistration(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(x.out, "Add this account to your authenticator app:")
		fmt.Fprintln(x.out, "  secret:", enr.Secret)
		if enr.OTPAuthURL != "" {
			fmt.Fprintln(x.out, "  uri:   ", enr.OTPAuthURL)
		}
		x.userID = enr.UserID
		return nil
	}

	res, err := x.c.SubmitLogin(ctx, email, password)
	if err != nil {
		return err
	}
	x.userID = res.UserID
	return nil
}

func (x *cli) mfa(ctx context.Context) error {
	if x.userID == "" {
		x.userID = x.c.PendingUserID()
	}
	code, err := x.p.line("Authenticator code (b:<backup code>, or back): ")
	if err != nil {
		return err
	}
	if code == "back" {
		x.userID = ""
		return nil
	}
	var outcome lockr.MFAOutcome
	if backup, ok := strings.CutPrefix(code, "b:"); ok {
		outcome, err = x.c.SubmitBackupCode(ctx, x.userID, backup)
	} else {
		outcome, err = x.c.SubmitMFA(ctx, x.userID, code)
	}
	if err != nil {
		return err
	}
	if outcome == lockr.MFANeedSecret {
		fmt.Fprintln(x.out, "Choose a master password for this device.")
	}
	return nil
}

func (x *cli) secretSetup(ctx context.Context) error {
	value, err := x.p.hidden("Master password: ")
	if err != nil {
		return err
	}
	confirm, err := x.p.hidden("Confirm: ")
	if err != nil {
		return err
	}
	return x.c.CompleteSecretSetup(ctx, value, confirm)
}

func (x *cli) unlock(ctx context.Context) error {
	_, err := x.c.Unlock(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, lockr.ErrManualUnlockRequired) {
		return err
	}
	value, err := x.p.hidden("Master password: ")
	if err != nil {
		return err
	}
	_, err = x.c.UnlockWithSecret(ctx, value)
	return err
}

func (x *cli) vault(ctx context.Context) error {
	cmd, err := x.p.line("lockr> ")
	if err != nil {
		return err
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}
	v, err := x.c.Vault()
	if err != nil {
		return err
	}

	switch fields[0] {
	case "ls", "list":
		items, err := v.ListVault(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(x.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSITE\tUSERNAME")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.SiteName, it.Username)
		}
		return tw.Flush()
	case "show":
		if len(fields) < 2 {
			return errors.New("usage: show <id>")
		}
		items, err := v.ListVault(ctx)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.ID == fields[1] {
				fmt.Fprintf(x.out, "%s\n  username: %s\n  password: %s\n  notes:    %s\n", it.SiteName, it.Username, it.Password, it.Notes)
				return nil
			}
		}
		return errors.New("no such item")
	case "add":
		var in api.NewVaultItem
		if in.SiteName, err = x.p.line("Site: "); err != nil {
			return err
		}
		if in.Username, err = x.p.line("Username: "); err != nil {
			return err
		}
		if in.Password, err = x.p.hidden("Password: "); err != nil {
			return err
		}
		if in.Notes, err = x.p.line("Notes: "); err != nil {
			return err
		}
		item, err := v.AddVaultItem(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintln(x.out, "added", item.ID)
		return nil
	case "rm":
		if len(fields) < 2 {
			return errors.New("usage: rm <id>")
		}
		return v.DeleteVaultItem(ctx, fields[1])
	case "whoami":
		x.c.LoadProfile(ctx)
		if u := x.c.Session().User; u != nil {
			fmt.Fprintf(x.out, "%s (%s)\n", u.Email, u.ID)
		}
		return nil
	case "codes":
		codes, err := x.c.RotateBackupCodes(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(x.out, "New backup codes, each usable once:")
		for _, code := range codes {
			fmt.Fprintln(x.out, " ", code)
		}
		return nil
	case "logout":
		x.userID = ""
		return x.c.Logout(ctx)
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintln(x.out, "commands: ls, show <id>, add, rm <id>, whoami, codes, logout, quit")
		return nil
	}
}
