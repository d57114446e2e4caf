package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/internal/infrastructure/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	simCameras  int
	simHold     time.Duration
	simStorage  string
	simPolicy   string
	simDeadline time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a Director and Cameras through one recording",
	Long: `Start a Director and N Cameras in-process, join every Camera to the
Director's session, record for --hold and print each device's final
snapshot as JSON.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simCameras, "cameras", "n", 2, "number of cameras")
	simulateCmd.Flags().DurationVar(&simHold, "hold", time.Second, "how long to record")
	simulateCmd.Flags().StringVar(&simStorage, "storage", repositories.BackendMemory, "storage backend")
	simulateCmd.Flags().StringVar(&simPolicy, "policy", "", "override session.recording_policy (local|forward)")
	simulateCmd.Flags().DurationVar(&simDeadline, "deadline", 30*time.Second, "give up after this long")
}

// simulationReport is what simulate prints.
type simulationReport struct {
	SessionID domain.SessionID `json:"session_id"`
	Devices   []deviceReport   `json:"devices"`
}

type deviceReport struct {
	Profile   string           `json:"profile"`
	Device    domain.Device    `json:"device"`
	JoinState domain.JoinState `json:"join_state"`
	Session   *domain.Session  `json:"session,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simCameras < 1 {
		return fmt.Errorf("--cameras must be at least 1")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Storage.Backend = simStorage
	if simPolicy != "" {
		cfg.Session.RecordingPolicy = simPolicy
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), simDeadline)
	defer cancel()

	a, err := newApp(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	forward := cfg.Session.RecordingPolicy == string(domain.RecordingForward)
	report, err := simulate(ctx, a.studio, simCameras, simHold, forward)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// simulate drives one Director and n Cameras through a full recording and
// reports every device once the Cameras have caught up. Each Camera adds one
// recording at the end; with forward set the Director must collect all of
// them.
func simulate(ctx context.Context, studio ports.Studio, n int, hold time.Duration, forward bool) (simulationReport, error) {
	director, err := studio.Start(ctx, "director", "web")
	if err != nil {
		return simulationReport{}, err
	}
	id, err := director.CreateSession(ctx)
	if err != nil {
		return simulationReport{}, err
	}
	if id == "" {
		return simulationReport{}, fmt.Errorf("director has no identity")
	}

	cameras := make([]ports.DeviceService, 0, n)
	for i := 1; i <= n; i++ {
		camera, err := studio.Start(ctx, fmt.Sprintf("camera-%d", i), "ios")
		if err != nil {
			return simulationReport{}, err
		}
		if err := camera.JoinSession(ctx, id); err != nil {
			return simulationReport{}, err
		}
		cameras = append(cameras, camera)
	}

	err = waitUntil(ctx, func() bool {
		s, ok := director.Session()
		return ok && len(s.Devices) == n+1
	})
	if err != nil {
		return simulationReport{}, fmt.Errorf("cameras did not join: %w", err)
	}

	if err := director.StartRecording(ctx); err != nil {
		return simulationReport{}, err
	}
	if err := waitUntil(ctx, allInStatus(cameras, domain.SessionActive)); err != nil {
		return simulationReport{}, fmt.Errorf("cameras did not start recording: %w", err)
	}
	select {
	case <-time.After(hold):
	case <-ctx.Done():
		return simulationReport{}, ctx.Err()
	}
	if err := director.StopRecording(ctx); err != nil {
		return simulationReport{}, err
	}
	if err := waitUntil(ctx, allInStatus(cameras, domain.SessionIdle)); err != nil {
		return simulationReport{}, fmt.Errorf("cameras did not stop recording: %w", err)
	}

	for _, camera := range cameras {
		if _, err := camera.AddRecording(ctx, domain.Recording{Duration: hold.Seconds()}); err != nil {
			return simulationReport{}, err
		}
	}
	if forward {
		err = waitUntil(ctx, func() bool {
			s, ok := director.Session()
			return ok && len(s.Recordings) == n
		})
		if err != nil {
			return simulationReport{}, fmt.Errorf("recordings did not reach the director: %w", err)
		}
	}

	report := simulationReport{SessionID: id}
	for _, device := range studio.List() {
		r := deviceReport{Profile: device.Profile(), JoinState: device.JoinState()}
		r.Device, _ = device.CurrentDevice()
		if s, ok := device.Session(); ok {
			r.Session = &s
		}
		report.Devices = append(report.Devices, r)
	}
	return report, nil
}

func allInStatus(devices []ports.DeviceService, status domain.SessionStatus) func() bool {
	return func() bool {
		for _, d := range devices {
			s, ok := d.Session()
			if !ok || s.Status != status {
				return false
			}
		}
		return true
	}
}

func waitUntil(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
