// Package profiling adds --cpu-profile, --mem-profile and --timing to a
// cobra command tree.
package profiling

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// Flags holds profiling state for one command invocation.
type Flags struct {
	cpuPath string
	memPath string
	timing  bool

	cpuFile *os.File
}

// AddFlags registers the persistent profiling flags on cmd.
func (f *Flags) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.cpuPath, "cpu-profile", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&f.memPath, "mem-profile", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().BoolVar(&f.timing, "timing", false, "Print phase timings on exit")
}

// PreRun is a PersistentPreRunE hook.
func (f *Flags) PreRun(cmd *cobra.Command, args []string) error {
	if f.timing {
		Enable()
	}
	if f.cpuPath == "" {
		return nil
	}
	file, err := os.Create(f.cpuPath)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		file.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	f.cpuFile = file
	return nil
}

// PostRun is a PersistentPostRun hook.
func (f *Flags) PostRun(cmd *cobra.Command, args []string) {
	w := cmd.ErrOrStderr()
	if f.cpuFile != nil {
		pprof.StopCPUProfile()
		f.cpuFile.Close()
		f.cpuFile = nil
		fmt.Fprintf(w, "CPU profile written to %s\n", f.cpuPath)
	}
	if f.memPath != "" {
		if err := writeHeap(f.memPath); err != nil {
			fmt.Fprintf(w, "could not write heap profile: %v\n", err)
		} else {
			fmt.Fprintf(w, "Heap profile written to %s\n", f.memPath)
		}
	}
	if f.timing {
		Summarize(w)
	}
}

func writeHeap(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(file)
}

type phase struct {
	name     string
	duration time.Duration
}

var (
	mu      sync.Mutex
	enabled bool
	started time.Time
	phases  []phase
)

// Enable starts recording phases.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	started = time.Now()
	phases = nil
}

// Start times a phase; call the returned func to end it. Phases are cheap
// no-ops unless Enable was called.
func Start(name string) (stop func()) {
	mu.Lock()
	on := enabled
	mu.Unlock()
	if !on {
		return func() {}
	}
	begin := time.Now()
	return func() {
		d := time.Since(begin)
		mu.Lock()
		phases = append(phases, phase{name: name, duration: d})
		mu.Unlock()
	}
}

// Summarize prints each recorded phase with its share of the total run.
func Summarize(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	total := time.Since(started)
	fmt.Fprintln(w, "\n--- Timing ---")
	for _, p := range phases {
		pct := 0.0
		if total > 0 {
			pct = float64(p.duration) / float64(total) * 100
		}
		fmt.Fprintf(w, "- %s (%v, %.1f%%)\n", p.name, p.duration.Round(100*time.Microsecond), pct)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}
