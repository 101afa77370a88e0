package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/camera"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/liveness"
)

var livenessCmd = &cobra.Command{
	Use:   "liveness <frames-dir>",
	Short: "Run liveness checks over recorded camera frames",
	Long: `Replay the JPEG frames of a directory in name order and submit one to
the liveness endpoint on every poll until all four checks passed
(blink, head movement, depth analysis, anti-spoofing) or the timeout
expires.

Examples:
  blinkpay liveness ./frames
  blinkpay liveness --interval 500ms --timeout 30s ./frames`,
	Args: cobra.ExactArgs(1),
	RunE: runLiveness,
}

func init() {
	rootCmd.AddCommand(livenessCmd)

	livenessCmd.Flags().Duration("interval", 0, "Poll interval (defaults to LIVENESS_INTERVAL)")
	livenessCmd.Flags().Duration("timeout", time.Minute, "Give up after this long")
	livenessCmd.Flags().Bool("json", false, "Output as JSON")
}

var livenessChecks = []struct {
	label  string
	passed func(faceapi.LivenessResult) bool
}{
	{"Blink detected", func(r faceapi.LivenessResult) bool { return r.BlinkDetected }},
	{"Head movement", func(r faceapi.LivenessResult) bool { return r.HeadMovementDetected }},
	{"Depth analysis", func(r faceapi.LivenessResult) bool { return r.DepthAnalysisComplete }},
	{"Anti-spoofing", func(r faceapi.LivenessResult) bool { return r.AntiSpoofingVerified }},
}

func countPassed(r faceapi.LivenessResult) int {
	n := 0
	for _, c := range livenessChecks {
		if c.passed(r) {
			n++
		}
	}
	return n
}

func runLiveness(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	interval := mustGetDuration(cmd, "interval")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	if interval <= 0 {
		interval = rt.Config.Liveness.Interval
	}

	ctx, cancel := context.WithTimeout(ctx, mustGetDuration(cmd, "timeout"))
	defer cancel()

	device := camera.NewDirDevice(args[0])
	scope := camera.NewScope(device, rt.Log)
	defer scope.Close()
	if err := scope.Start(ctx); err != nil {
		return fmt.Errorf("failed to open frames: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(livenessChecks),
			progressbar.OptionSetDescription("Liveness checks"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	poller := liveness.NewPoller(rt.Faces, scope, interval, rt.Log)
	result, err := poller.Run(ctx, func(u liveness.Update) {
		if bar != nil {
			bar.Set(countPassed(u.Result))
		}
	})
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	passed := result.Passed()
	if jsonOutput {
		if err := printJSON(map[string]any{"result": result, "passed": passed}); err != nil {
			return err
		}
	} else {
		for _, c := range livenessChecks {
			mark := "✗"
			if c.passed(result) {
				mark = "✓"
			}
			fmt.Printf("%s %s\n", mark, c.label)
		}
	}

	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !passed {
		return fmt.Errorf("liveness not confirmed: %d of %d checks passed", countPassed(result), len(livenessChecks))
	}
	return nil
}
