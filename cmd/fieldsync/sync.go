package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/httpapi"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [ID]",
	Short: "Sync one work order, or every pending and failed one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return syncOne(cmd, args[0])
		}

		a, err := newApp(cmd.Context(), "SyncAll")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.SyncAll(cmd.Context())
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Synced %d work order(s), %d failed\n", result.Success, result.Failed)
		return nil
	},
}

func syncOne(cmd *cobra.Command, id string) error {
	a, err := newApp(cmd.Context(), "FlushWorkOrder")
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.SyncOrder(cmd.Context(), id)
	if report.Photos.Success+report.Photos.Failed > 0 {
		fmt.Printf("Photos: %d uploaded, %d failed\n", report.Photos.Success, report.Photos.Failed)
	}
	if err != nil {
		return describeError(err)
	}
	fmt.Printf("Synced %s as %s\n", id, report.ServerID)
	for _, m := range report.Missing {
		fmt.Printf("  missing photo: %s\n", m)
	}
	return nil
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is waiting to sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SyncStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		online := "offline"
		if s.Online {
			online = "online"
		}
		last := "never"
		if s.LastSyncAt != nil {
			last = s.LastSyncAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Connectivity:   %s\n", online)
		fmt.Printf("Last sync:      %s\n", last)
		fmt.Printf("Pending orders: %d\n", s.PendingCount)
		fmt.Printf("Syncing orders: %d\n", s.SyncingCount)
		fmt.Printf("Failed orders:  %d\n", s.FailedCount)
		fmt.Printf("Pending photos: %d\n", s.PendingPhotos)
		return nil
	},
}

var flushPhotosCmd = &cobra.Command{
	Use:   "photos OWNER",
	Short: "Upload the unsynced photos of a work order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FlushPhotoQueue")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.FlushPhotos(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Uploaded %d photo(s), %d failed\n", result.Success, result.Failed)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local HTTP API and sync in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, "Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.Config().Server.Addr
		}

		logger := a.Logger()
		api := httpapi.NewServer(a.Objects(), a.Orders(), a.Engine(), a.ServiceLogger())
		srv := &http.Server{
			Addr:         addr,
			Handler:      api.Handler(a.LogWriter()),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		stopSync := func() {}
		if noSync, _ := cmd.Flags().GetBool("no-auto-sync"); !noSync {
			stopSync = a.Engine().StartAutoSync(ctx, func(result fieldsync.FlushResult, err error) {
				if err != nil && !errors.Is(err, fieldsync.ErrSyncInProgress) {
					logger.Warn("auto sync failed", "error", err)
				}
			})
		}
		defer stopSync()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("serving: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(flushPhotosCmd)

	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr from the config)")
	serveCmd.Flags().Bool("no-auto-sync", false, "Do not sync in the background")
}
