package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <dir>",
	Short: "Enroll attendees from a directory of face photos",
	Long: `Compute face embeddings for a directory of photos and store them as the
attendees' reference faces. Each file is named after the attendee it shows,
either by attendee number (42.jpg) or by attendee id (<uuid>.jpg).
Existing embeddings are replaced.

Examples:
  # Preview which files map to which attendees
  rollcall enroll ./faces --dry-run

  # Enroll with 8 concurrent recognition calls
  rollcall enroll ./faces --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("workers", constants.DefaultEnrollWorkers, "Number of concurrent enrollments")
	enrollCmd.Flags().Bool("dry-run", false, "Only show the file to attendee mapping")
}

var enrollExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type enrollJob struct {
	path     string
	attendee database.Attendee
}

// planEnrollment maps image files in dir to attendees. Files that match nobody are returned as skipped.
func planEnrollment(dir string, attendees []database.Attendee) (jobs []enrollJob, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	byID := make(map[uuid.UUID]database.Attendee, len(attendees))
	byNumber := make(map[int64]database.Attendee, len(attendees))
	for _, a := range attendees {
		byID[a.ID] = a
		byNumber[a.Number] = a
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !slices.Contains(enrollExtensions, ext) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))

		var a database.Attendee
		var ok bool
		if id, err := uuid.Parse(stem); err == nil {
			a, ok = byID[id]
		} else if n, err := strconv.ParseInt(stem, 10, 64); err == nil {
			a, ok = byNumber[n]
		}
		if !ok {
			skipped = append(skipped, e.Name())
			continue
		}
		jobs = append(jobs, enrollJob{path: filepath.Join(dir, e.Name()), attendee: a})
	}
	return jobs, skipped, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	workers := mustGetInt(cmd, "workers")
	dryRun := mustGetBool(cmd, "dry-run")
	if workers < 1 {
		return errors.New("--workers must be at least 1")
	}

	cfg := config.Load()
	ctx := context.Background()
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	attendees, err := st.attendees.List(ctx)
	if err != nil {
		return fmt.Errorf("listing attendees: %w", err)
	}
	jobs, skipped, err := planEnrollment(args[0], attendees)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		fmt.Printf("Skipping %s: no matching attendee\n", name)
	}
	if len(jobs) == 0 {
		fmt.Println("Nothing to enroll")
		return nil
	}

	if dryRun {
		for _, j := range jobs {
			fmt.Printf("  %s -> %s (#%d)\n", filepath.Base(j.path), j.attendee.Name, j.attendee.Number)
		}
		fmt.Printf("\n%d photos would be enrolled\n", len(jobs))
		return nil
	}

	// Per-request logs would tear the progress bar.
	pipeline, _, err := newPipeline(cfg, st, nil, logger.New("error", cfg.Log.Format, os.Stderr))
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	var failures []string
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, job := range jobs {
		g.Go(func() error {
			defer bar.Add(1)

			image, err := os.ReadFile(job.path)
			if err == nil {
				_, err = pipeline.Enroll(gctx, job.attendee.ID, image)
			}
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(job.path), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	fmt.Println()

	slices.Sort(failures)
	for _, f := range failures {
		fmt.Printf("Failed %s\n", f)
	}
	fmt.Printf("\nCompleted: %d enrolled, %d errors\n", len(jobs)-len(failures), len(failures))
	if len(failures) > 0 {
		return fmt.Errorf("%d enrollments failed", len(failures))
	}
	return nil
}
