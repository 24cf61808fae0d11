package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/meterload/internal/config"
	"github.com/JonMunkholm/meterload/internal/core"
)

var (
	ingestMeter       string
	ingestProfile     string
	ingestDiagnostics bool

	ingestCmd = &cobra.Command{
		Use:   "ingest [--meter NAME] FILE... | METER=FILE...",
		Short: "Load one or more files into meters",
		Long: `Load delimited meter exports.

With --meter every file is loaded into that meter. Otherwise each argument
names its meter as METER=FILE. Files of one meter are loaded in the order
given; different meters are loaded in parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestMeter, "meter", "m", "", "meter to load every file into")
	ingestCmd.Flags().StringVarP(&ingestProfile, "profile", "p", "", "profile to use instead of the one named after the meter")
	ingestCmd.Flags().BoolVarP(&ingestDiagnostics, "diagnostics", "d", false, "print diagnostics of committed files too")
	rootCmd.AddCommand(ingestCmd)
}

// ingestJob is one file destined for one meter.
type ingestJob struct {
	meter string
	path  string
}

// planIngest groups the arguments by meter, keeping file order.
func planIngest(meter string, args []string) (order []string, jobs map[string][]ingestJob, err error) {
	jobs = make(map[string][]ingestJob)
	for _, arg := range args {
		m, path := meter, arg
		if m == "" {
			var ok bool
			m, path, ok = strings.Cut(arg, "=")
			if !ok || m == "" || path == "" {
				return nil, nil, fmt.Errorf("argument %q: expected METER=FILE or --meter", arg)
			}
		}
		if _, seen := jobs[m]; !seen {
			order = append(order, m)
		}
		jobs[m] = append(jobs[m], ingestJob{meter: m, path: path})
	}
	return order, jobs, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	order, jobs, err := planIngest(ingestMeter, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = core.ContextWithSource(ctx, "cli")
	out := &syncWriter{w: cmd.OutOrStdout()}

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Ingest.MaxConcurrent)
	for _, meter := range order {
		g.Go(func() error {
			for _, job := range jobs[meter] {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res, err := ingestFile(gctx, a.service, a.profiles, job)
				printResult(out, job, res, err)
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					// Later files of a cumulative meter depend on this one.
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d meters stopped on a failed file", failed, len(order))
	}
	return nil
}

func ingestFile(ctx context.Context, svc *core.Service, profiles *config.Profiles, job ingestJob) (*core.IngestResult, error) {
	profile, err := profiles.Resolve(job.meter, ingestProfile)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(job.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := int64(-1)
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	req, err := profile.Request(job.meter, filepath.Base(job.path), f, size)
	if err != nil {
		return nil, err
	}
	return svc.Ingest(ctx, req)
}

func printResult(w io.Writer, job ingestJob, res *core.IngestResult, err error) {
	if res == nil {
		fmt.Fprintf(w, "%s %s: failed: %s\n", job.meter, job.path, core.FormatUserError(err))
		return
	}

	fmt.Fprintf(w, "%s %s: %s rows=%d accepted=%d dropped=%d written=%d duration=%s\n",
		job.meter, job.path, res.Status, res.Rows, res.Accepted, res.Dropped, res.Written, res.Duration.Round(time.Millisecond))
	if err != nil {
		fmt.Fprintf(w, "  %s\n", core.FormatUserError(err))
		var perr *core.Error
		if !errors.As(err, &perr) || perr.Kind != core.KindFatalBatch {
			fmt.Fprintf(w, "  %v\n", err)
		}
	}
	if res.Diagnostics != "" && (err != nil || ingestDiagnostics) {
		for _, line := range strings.Split(res.Diagnostics, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// syncWriter serializes writes from parallel meters.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
