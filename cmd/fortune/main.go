package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/fortune/internal/platform/logging"
	"github.com/example/fortune/pkg/fortune/record"
)

type options struct {
	url     string
	raw     bool
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fortune: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "fortune",
		Short:         "Print the fortune currently served by fortuned",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger, cleanup, err := logging.Global(logging.Config{
				ServiceName: "fortune",
				Environment: "dev",
				Level:       level,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = cleanup(ctx)
			}()
			return run(cmd.Context(), cmd.OutOrStdout(), logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:3000", "fortuned base URL")
	cmd.Flags().BoolVar(&opts.raw, "json", false, "Print the raw JSON record")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log request details to stderr")
	return cmd
}

func run(ctx context.Context, out io.Writer, logger *zap.Logger, opts options) error {
	client := &http.Client{Timeout: opts.timeout}

	rec, body, err := fetchFortune(ctx, client, opts.url)
	if err != nil {
		logger.Error("fetch fortune", zap.String("url", opts.url), zap.Error(err))
		return err
	}
	logger.Debug("fortune fetched",
		zap.String("attribution", rec.Attribution),
		zap.String("fingerprint", rec.Fingerprint()),
	)

	if opts.raw {
		_, err = out.Write(body)
		return err
	}
	_, err = fmt.Fprintln(out, rec.String())
	return err
}

// fetchFortune returns the decoded record along with the body it was read from.
func fetchFortune(ctx context.Context, client *http.Client, baseURL string) (record.Record, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/", nil)
	if err != nil {
		return record.Record{}, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return record.Record{}, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return record.Record{}, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return record.Record{}, nil, fmt.Errorf("fortune status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rec record.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return record.Record{}, nil, fmt.Errorf("decode fortune: %w", err)
	}
	if rec.Text == "" || rec.Attribution == "" {
		return record.Record{}, nil, fmt.Errorf("decode fortune: text and attribution are required")
	}
	return rec, body, nil
}
