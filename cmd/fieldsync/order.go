package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage pending work orders",
}

func printOrder(o *model.PendingWorkOrder) {
	server := o.ServerID
	if server == "" {
		server = "-"
	}
	fmt.Printf("%s  %-8s  %-12s  %s  attempts:%d  photos:%d",
		o.ID,
		o.Status,
		server,
		o.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		o.SyncAttempts,
		len(o.Fields.PhotoIDs()),
	)
	if len(o.MissingPhotos) > 0 {
		fmt.Printf("  missing:%d", len(o.MissingPhotos))
	}
	if o.ErrorMessage != "" {
		fmt.Printf("  %q", o.ErrorMessage)
	}
	fmt.Println()
}

func parseStatuses(raw []string) []model.Status {
	var out []model.Status
	for _, r := range raw {
		for _, s := range strings.Split(r, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, model.Status(s))
			}
		}
	}
	return out
}

var orderSaveCmd = &cobra.Command{
	Use:   "save FIELDS.json",
	Short: "Save a work order draft from a JSON fields document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		submit, _ := cmd.Flags().GetBool("submit")

		status := model.StatusDraft
		if submit {
			status = model.StatusPending
		}

		a, err := newApp(cmd.Context(), "SaveDraft")
		if err != nil {
			return err
		}
		defer a.Close()

		saved, err := a.SaveOrderFile(cmd.Context(), id, args[0], status)
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Saved %s (%s)\n", saved, status)
		return nil
	},
}

var orderSubmitCmd = &cobra.Command{
	Use:   "submit ID",
	Short: "Queue a draft for sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Submit")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SubmitOrder(cmd.Context(), args[0]); err != nil {
			return describeError(err)
		}
		fmt.Printf("Submitted %s\n", args[0])
		return nil
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringSlice("status")

		statuses := parseStatuses(raw)
		for _, s := range statuses {
			if !s.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
		}

		a, err := newApp(cmd.Context(), "ListOrders")
		if err != nil {
			return err
		}
		defer a.Close()

		orders, err := a.ListOrders(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Println("No work orders found.")
			return nil
		}
		for _, o := range orders {
			printOrder(o)
		}
		return nil
	},
}

var orderShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a work order as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetOrder")
		if err != nil {
			return err
		}
		defer a.Close()

		order, err := a.GetOrder(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(order)
	},
}

var orderDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a work order; its photos are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteOrder")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteOrder(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var orderRestorePhotosCmd = &cobra.Command{
	Use:   "restore-photos ID",
	Short: "Re-attach photos the work order owns but does not reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RestorePhotos")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.RestorePhotos(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Restored %d photo reference(s)\n", n)
		return nil
	},
}

var orderRefreshCmd = &cobra.Command{
	Use:   "refresh ID",
	Short: "Reload the server id and photos of a work order from the remote database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RefreshOrder")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.RefreshOrder(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Refreshed %s from %s: %d photo(s) matched, %d added from remote\n",
			args[0], report.ServerID, report.Linked, report.Adopted)
		return nil
	},
}

func init() {
	orderCmd.AddCommand(orderSaveCmd)
	orderSaveCmd.Flags().String("id", "", "Id of an existing work order to update")
	orderSaveCmd.Flags().Bool("submit", false, "Save as pending instead of draft")

	orderCmd.AddCommand(orderSubmitCmd)
	orderCmd.AddCommand(orderListCmd)
	orderListCmd.Flags().StringSlice("status", nil, "Only list these statuses (draft, pending, syncing, failed, synced)")
	orderCmd.AddCommand(orderShowCmd)
	orderCmd.AddCommand(orderDeleteCmd)
	orderCmd.AddCommand(orderRestorePhotosCmd)
	orderCmd.AddCommand(orderRefreshCmd)
}
