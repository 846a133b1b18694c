package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pritzvi/linked-out/internal/models"
)

var (
	watchURL      string
	watchInterval time.Duration
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress of a running server's session",
	Long: `Poll a running server's progress endpoint and print the session state
until the session is final. Defaults to the local server on the
configured port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := watchURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", viper.GetInt("port"))
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()
		return watchRun(ctx, base, watchInterval, watchOnce)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "url", "", "server base URL (default http://localhost:<port>)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "poll interval")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "print the current state and exit")
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// fetchReport reads the progress report from a server at base.
func fetchReport(ctx context.Context, base string) (models.Report, error) {
	var rep models.Report
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/v1/progress", nil)
	if err != nil {
		return rep, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return rep, fmt.Errorf("fetch progress: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return rep, fmt.Errorf("fetch progress: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return rep, fmt.Errorf("decode progress: %w", err)
	}
	return rep, nil
}

func watchRun(ctx context.Context, base string, interval time.Duration, once bool) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		rep, err := fetchReport(ctx, base)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// Skip redraws while nothing changed.
		if key := reportKey(rep); key != last {
			renderReport(rep)
			last = key
		}
		if rep.IsFinal || once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func reportKey(rep models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%d|%d|%d|%s", rep.Phase, rep.DiscoveredCount, rep.CompletedCount,
		rep.ProcessingCount, rep.FailedCount, rep.Message)
	for _, p := range rep.Profiles {
		fmt.Fprintf(&b, "|%s=%s", p.ID, p.Status)
	}
	return b.String()
}
