package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/auth"
	"github.com/khanghh/kguard/internal/common"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
	"github.com/urfave/cli/v2"
)

var (
	usernameFlag = &cli.StringFlag{
		Name:     "username",
		Usage:    "Account username",
		Required: true,
	}
	emailFlag = &cli.StringFlag{
		Name:     "email",
		Usage:    "Account email address",
		Required: true,
	}
	roleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "Account role (user, admin, superadmin)",
		Value: string(model.RoleUser),
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "Initial password, a temporary one is generated and mailed when empty",
	}
	actorFlag = &cli.StringFlag{
		Name:  "actor",
		Usage: "Operator name recorded in the audit trail",
		Value: "cli",
	}
	auditUsernameFlag = &cli.StringFlag{
		Name:  "username",
		Usage: "Only show events of this username",
	}
	auditTypeFlag = &cli.StringFlag{
		Name:  "type",
		Usage: "Only show events of this type, e.g. LOGIN_FAIL",
	}
	auditLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of events to print",
		Value: params.AuditListDefaultLimit,
	}
)

var (
	serveCommand = &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP API server",
		Action: run,
	}
	provisionCommand = &cli.Command{
		Name:  "provision",
		Usage: "Create an account, non-admin roles must change the password on first login",
		Flags: []cli.Flag{
			usernameFlag,
			emailFlag,
			roleFlag,
			passwordFlag,
			actorFlag,
		},
		Action: provisionAccount,
	}
	unlockCommand = &cli.Command{
		Name:   "unlock",
		Usage:  "Clear the password and second factor locks of an account",
		Flags:  []cli.Flag{usernameFlag, actorFlag},
		Action: unlockAccount,
	}
	activateCommand = &cli.Command{
		Name:   "activate",
		Usage:  "Re-enable a deactivated account",
		Flags:  []cli.Flag{usernameFlag, actorFlag},
		Action: setAccountActive(true),
	}
	deactivateCommand = &cli.Command{
		Name:   "deactivate",
		Usage:  "Disable an account so it can no longer log in",
		Flags:  []cli.Flag{usernameFlag, actorFlag},
		Action: setAccountActive(false),
	}
	auditCommand = &cli.Command{
		Name:  "audit",
		Usage: "Print recent audit events, newest first",
		Flags: []cli.Flag{
			auditUsernameFlag,
			auditTypeFlag,
			auditLimitFlag,
		},
		Action: listAuditEvents,
	}
	keygenCommand = &cli.Command{
		Name:  "keygen",
		Usage: "Generate a random master key",
		Action: func(ctx *cli.Context) error {
			key, err := common.GenerateSecret(params.MasterKeyLength)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
)

func provisionAccount(ctx *cli.Context) error {
	appCtx := mustInitApp(ctx)
	defer appCtx.Close()

	id, tempPassword, err := appCtx.auth.ProvisionAccount(ctx.Context, auth.ProvisionRequest{
		Username: ctx.String(usernameFlag.Name),
		Email:    ctx.String(emailFlag.Name),
		Role:     model.Role(ctx.String(roleFlag.Name)),
		Password: ctx.String(passwordFlag.Name),
		Actor:    ctx.String(actorFlag.Name),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Account %d created.\n", id)
	if tempPassword != "" {
		fmt.Printf("Temporary password: %s\n", tempPassword)
	}
	return nil
}

func unlockAccount(ctx *cli.Context) error {
	appCtx := mustInitApp(ctx)
	defer appCtx.Close()

	auditCtx := audit.WithClientInfo(ctx.Context, audit.ClientInfo{UserAgent: "cli/" + ctx.String(actorFlag.Name)})
	if err := appCtx.auth.Unlock(auditCtx, ctx.String(usernameFlag.Name)); err != nil {
		return err
	}
	fmt.Println("Account unlocked.")
	return nil
}

func setAccountActive(active bool) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		appCtx := mustInitApp(ctx)
		defer appCtx.Close()

		auditCtx := audit.WithClientInfo(ctx.Context, audit.ClientInfo{UserAgent: "cli/" + ctx.String(actorFlag.Name)})
		username := ctx.String(usernameFlag.Name)
		if err := appCtx.auth.SetActive(auditCtx, username, active); err != nil {
			if errors.Is(err, auth.ErrAccountNotFound) {
				return fmt.Errorf("account %q not found", username)
			}
			return err
		}
		if active {
			fmt.Println("Account activated.")
		} else {
			fmt.Println("Account deactivated.")
		}
		return nil
	}
}

func formatMetadata(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+metadata[key])
	}
	return strings.Join(pairs, " ")
}

func listAuditEvents(ctx *cli.Context) error {
	appCtx := mustInitApp(ctx)
	defer appCtx.Close()

	events, err := appCtx.auditRepo.Find(ctx.Context, audit.Filter{
		Username: ctx.String(auditUsernameFlag.Name),
		Type:     audit.EventType(ctx.String(auditTypeFlag.Name)),
		Limit:    ctx.Int(auditLimitFlag.Name),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tUSERNAME\tSUCCESS\tMETADATA")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.EventType,
			event.Username,
			event.Success,
			formatMetadata(event.Metadata),
		)
	}
	return w.Flush()
}
