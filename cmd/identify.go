package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/identify"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the attendee in a photo",
	Long: `Identify the attendee shown in a photo using the face recognition service.

Examples:
  # Identify with the configured recognition mode
  rollcall identify photo.jpg

  # Match embeddings and show distances
  rollcall identify photo.jpg --mode embed --candidates

  # Only consider two attendees
  rollcall identify photo.jpg --among 6a0c3f5e-2d3b-4c1e-9d6f-0b1a2c3d4e5f,0f4b8a61-93c2-4d2e-8f1b-7c5d9e0a1b2c

  # Identify and record attendance for the best match
  rollcall identify photo.jpg --record 6a0c3f5e-2d3b-4c1e-9d6f-0b1a2c3d4e5f`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("mode", "", "Recognition mode: classify or embed (default from RECOGNITION_MODE)")
	identifyCmd.Flags().Bool("candidates", false, "Show match distances (embed mode)")
	identifyCmd.Flags().StringSlice("among", nil, "Only match these attendee ids (comma-separated)")
	identifyCmd.Flags().String("record", "", "Record attendance for the best match in this subject")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if mode := mustGetString(cmd, "mode"); mode != "" {
		cfg.Recognition.Mode = mode
	}
	showCandidates := mustGetBool(cmd, "candidates")
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	var subjectID uuid.UUID
	if s := mustGetString(cmd, "record"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid subject id %q: %w", s, err)
		}
		subjectID = id
	}

	among, err := parseUUIDs(mustGetStringSlice(cmd, "among"))
	if err != nil {
		return err
	}
	if len(among) > 0 && subjectID != uuid.Nil {
		return errors.New("--among cannot be combined with --record")
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	pipeline, _, err := newPipeline(cfg, st, nil, log)
	if err != nil {
		return err
	}

	if subjectID != uuid.Nil {
		rec, err := pipeline.RecordAttendanceFromImage(ctx, subjectID, image)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rec)
		}
		fmt.Printf("Recorded attendance %s for %s (#%d) at %s\n",
			rec.ID, rec.Attendee.Name, rec.Attendee.Number, rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	}

	var candidates []facematch.Candidate
	if len(among) > 0 {
		candidates, err = pipeline.IdentifyAmong(ctx, image, among)
	} else {
		candidates, err = pipeline.IdentifyCandidates(ctx, image)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(candidates)
	}
	if len(candidates) == 0 {
		fmt.Println("Nobody recognized")
		return nil
	}

	fmt.Printf("Recognized (%s mode):\n", pipeline.Mode())
	for i, c := range candidates {
		if showCandidates && pipeline.Mode() == identify.ModeEmbed {
			fmt.Printf("  %d. %s (#%d) distance %.4f\n", i+1, c.Attendee.Name, c.Attendee.Number, c.Distance)
			continue
		}
		fmt.Printf("  %d. %s (#%d) %s\n", i+1, c.Attendee.Name, c.Attendee.Number, c.Attendee.ID)
	}
	return nil
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid attendee id %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
