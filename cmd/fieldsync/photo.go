package main

import (
	"fmt"
	"strconv"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Manage captured photos",
}

// floatFlag returns the value of a float flag, or nil when it was not given.
func floatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func printPhoto(p *model.PhotoRecord) {
	state := "pending"
	switch {
	case p.IsZombie():
		state = "zombie"
	case p.Uploaded:
		state = "uploaded"
	case p.Retries > 0:
		state = fmt.Sprintf("retry %d", p.Retries)
	}
	zone := "-"
	if p.UTMZone != nil {
		zone = *p.UTMZone
	}
	local := "local"
	if p.LocalPath == "" {
		local = "purged"
	}
	fmt.Printf("%s  %-10s  %-6s  %-4s  %-8d  %s\n", p.ID, state, local, zone, p.Size, p.RemoteURL)
}

var photoCaptureCmd = &cobra.Command{
	Use:   "capture FILE",
	Short: "Store an image as a capture of a work order slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		field, _ := cmd.Flags().GetString("field")
		index, _ := cmd.Flags().GetInt("index")

		a, err := newApp(cmd.Context(), "CapturePhoto")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.CapturePhoto(cmd.Context(), args[0], owner, field, index, floatFlag(cmd, "lat"), floatFlag(cmd, "lon"))
		if err != nil {
			return describeError(err)
		}
		printPhoto(rec)
		return nil
	},
}

var photoImportCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Store every image under DIR; subdirectories name the field type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		field, _ := cmd.Flags().GetString("field")

		a, err := newApp(cmd.Context(), "ImportPhotos")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.ImportPhotos(cmd.Context(), args[0], owner, field)
		for _, rec := range recs {
			printPhoto(rec)
		}
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Imported %d photo(s)\n", len(recs))
		return nil
	},
}

var photoListCmd = &cobra.Command{
	Use:   "list OWNER",
	Short: "List the photos of a work order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		known, _ := cmd.Flags().GetStringSlice("known")
		serverID, _ := cmd.Flags().GetString("server-id")

		a, err := newApp(cmd.Context(), "ListPhotos")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.ListPhotos(cmd.Context(), args[0], known, serverID)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No photos found.")
			return nil
		}
		for _, rec := range recs {
			printPhoto(rec)
		}
		return nil
	},
}

var photoExportCmd = &cobra.Command{
	Use:   "export ID FILE",
	Short: "Write the content of a photo to FILE",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ExportPhoto")
		if err != nil {
			return err
		}
		defer a.Close()

		if unlock, _ := cmd.Flags().GetBool("unlock"); unlock {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			if err := a.Unlock(pass); err != nil {
				return describeError(err)
			}
		}

		if err := a.ExportPhoto(cmd.Context(), args[0], args[1]); err != nil {
			return describeError(err)
		}
		fmt.Printf("Wrote %s\n", args[1])
		return nil
	},
}

var photoPurgeCmd = &cobra.Command{
	Use:   "purge OWNER",
	Short: "Free local space used by uploaded photos of a work order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "PurgePhotos")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PurgePhotos(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d photo(s)\n", n)
		return nil
	},
}

var photoStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize local photo storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Total:    %d photo(s), %s\n", s.TotalPhotos, humanBytes(s.TotalBytes))
		fmt.Printf("Pending:  %d photo(s), %s\n", s.PendingPhotos, humanBytes(s.PendingBytes))
		fmt.Printf("Uploaded: %d photo(s), %s\n", s.UploadedPhotos, humanBytes(s.UploadedBytes))
		return nil
	},
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	photoCmd.AddCommand(photoCaptureCmd)
	photoCaptureCmd.Flags().String("owner", "", "Work order id the photo belongs to")
	photoCaptureCmd.Flags().String("field", "", "Field type (slot) of the photo, e.g. antes")
	photoCaptureCmd.Flags().Int("index", 0, "Position within the slot")
	photoCaptureCmd.Flags().Float64("lat", 0, "Latitude of the capture")
	photoCaptureCmd.Flags().Float64("lon", 0, "Longitude of the capture")
	photoCaptureCmd.MarkFlagRequired("owner")
	photoCaptureCmd.MarkFlagRequired("field")

	photoCmd.AddCommand(photoImportCmd)
	photoImportCmd.Flags().String("owner", "", "Work order id the photos belong to")
	photoImportCmd.Flags().String("field", "", "Field type for images directly in DIR")
	photoImportCmd.MarkFlagRequired("owner")

	photoCmd.AddCommand(photoListCmd)
	photoListCmd.Flags().StringSlice("known", nil, "Photo ids referenced by the form, for fallback lookup")
	photoListCmd.Flags().String("server-id", "", "Server id of the work order, for fallback lookup")

	photoCmd.AddCommand(photoExportCmd)
	photoExportCmd.Flags().Bool("unlock", false, "Prompt for the passphrase to read encrypted photos")

	photoCmd.AddCommand(photoPurgeCmd)
	photoCmd.AddCommand(photoStatsCmd)
}
