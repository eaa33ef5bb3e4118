package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"github.com/spf13/cobra"
)

var (
	auditUser   string
	auditAction string
	auditSince  time.Duration
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		filter := dbhelper.AuditFilter{
			UserID: auditUser,
			Action: models.AuditAction(auditAction),
			Limit:  auditLimit,
		}
		if auditSince > 0 {
			filter.Since = time.Now().UTC().Add(-auditSince)
		}
		entries, err := store.Audit.RecentEvents(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Time", "Action", "User", "IP", "Risk", "Details"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		for _, e := range entries {
			user := "-"
			if e.UserID != nil {
				user = *e.UserID
			}
			details, _ := json.Marshal(e.Details)
			table.Append([]string{
				e.Timestamp.Format(time.RFC3339),
				string(e.Action),
				user,
				e.IPAddress,
				riskText(e.RiskScore),
				string(details),
			})
		}
		table.Render()
		return nil
	},
}

func riskText(score int) string {
	s := strconv.Itoa(score)
	switch {
	case score >= utils.RISK_SUSPICIOUS_THRESHOLD:
		return color.RedString(s)
	case score > 0:
		return color.YellowString(s)
	default:
		return s
	}
}

func init() {
	flags := auditCmd.Flags()
	flags.StringVar(&auditUser, "user", "", "only entries for this user id")
	flags.StringVar(&auditAction, "action", "", "only entries with this action, e.g. LOGIN_FAILED")
	flags.DurationVar(&auditSince, "since", 0, "only entries newer than this, e.g. 1h")
	flags.IntVar(&auditLimit, "limit", 50, "maximum number of entries")
}
