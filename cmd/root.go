package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/yalue/elf_reader"

	"binspect/common"
	"binspect/elfscan"
	"binspect/probe"
	"binspect/render"
)

var (
	jsonOutput bool
	parallel   bool
	maxWorkers int
	limitsPath string
	verifyELF  bool
	useMmap    bool
)

var ErrTooLarge = errors.New("file exceeds the configured size limit")

var rootCmd = &cobra.Command{
	Use:   "binspect FILE...",
	Short: "Offline structural inspection of binary file formats",
	Long: `binspect decodes the structure of executable and container
formats (PE, ELF, ASF, WebM, RIFF, FLAC, ZIP, GIF, PNG, MP4, gzip)
without executing, rendering or extracting anything. Malformed input
produces findings, not failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit one JSON document per file")
	rootCmd.Flags().BoolVarP(&parallel, "parallel", "j", false, "Inspect files in parallel")
	rootCmd.Flags().IntVar(&maxWorkers, "workers", 4, "Maximum number of parallel workers")
	rootCmd.Flags().StringVar(&limitsPath, "limits", "", "YAML file overriding the default scan limits")
	rootCmd.Flags().BoolVar(&verifyELF, "verify-elf", false, "Cross-check ELF results against a second parser")
	rootCmd.Flags().BoolVar(&useMmap, "mmap", false, "Map files instead of reading them into memory")
}

type report struct {
	filename string
	output   string
	err      error
}

func run(cmd *cobra.Command, args []string) error {
	limits, err := loadLimits(limitsPath)
	if err != nil {
		return fmt.Errorf("loading limits: %w", err)
	}
	if limits.Workers > 0 {
		maxWorkers = limits.Workers
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > 16 {
		maxWorkers = 16
	}

	var reports []report
	if parallel && len(args) > 1 {
		reports = inspectParallel(args, limits)
	} else {
		reports = make([]report, 0, len(args))
		for _, filename := range args {
			reports = append(reports, inspectFile(filename, limits))
		}
	}

	failed := 0
	for _, r := range reports {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.filename, r.err)
			continue
		}
		fmt.Print(r.output)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(reports))
	}
	return nil
}

// inspectParallel fans the files out over a bounded worker pool and
// collects per-file reports. Jobs carry the argument index so the same
// path given twice yields two reports, in input order.
func inspectParallel(filenames []string, limits Limits) []report {
	type job struct {
		index    int
		filename string
	}
	jobs := make(chan job, len(filenames))
	type indexedReport struct {
		index int
		rep   report
	}
	results := make(chan indexedReport, len(filenames))

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- indexedReport{j.index, inspectFile(j.filename, limits)}
			}
		}()
	}

	for i, filename := range filenames {
		jobs <- job{i, filename}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Input order, regardless of completion order.
	ordered := make([]report, len(filenames))
	for r := range results {
		ordered[r.index] = r.rep
	}
	return ordered
}

func inspectFile(filename string, limits Limits) report {
	r := report{filename: filename}

	src, err := openSource(filename)
	if err != nil {
		r.err = err
		return r
	}
	defer src.Close()

	if limits.MaxFileSize > 0 && src.Size() > limits.MaxFileSize {
		r.err = fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, src.Size(), limits.MaxFileSize)
		return r
	}

	data, err := src.ReadRange(0, src.Size())
	if err != nil {
		r.err = fmt.Errorf("reading file: %w", err)
		return r
	}

	res := probe.Identify(data)
	if jsonOutput {
		raw, err := json.Marshal(render.Dict(filename, res))
		if err != nil {
			r.err = fmt.Errorf("encoding result: %w", err)
			return r
		}
		r.output = string(raw) + "\n"
	} else {
		r.output = render.Text(filename, res)
	}

	if verifyELF && res.Format == "elf" {
		if f, ok := res.Value.(*elfscan.File); ok {
			r.output += crossCheckELF(data, f)
		}
	}
	return r
}

type closableSource interface {
	common.Source
	Close() error
}

type bytesCloser struct{ *common.BytesSource }

func (bytesCloser) Close() error { return nil }

func openSource(filename string) (closableSource, error) {
	if useMmap {
		return common.OpenMmap(filename)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return bytesCloser{common.NewBytesSource(data)}, nil
}

// crossCheckELF compares our segment and section counts against an
// independent parser. Disagreement is worth a look, not a failure:
// the second parser rejects files ours deliberately tolerates.
func crossCheckELF(data []byte, f *elfscan.File) string {
	other, err := elf_reader.ParseELFFile(data)
	if err != nil {
		return fmt.Sprintf("  verify: second parser rejected the file: %v\n", err)
	}
	out := ""
	if got, want := uint16(len(f.Segments)), other.GetSegmentCount(); got != want {
		out += fmt.Sprintf("  verify: segment count mismatch: %d here, %d in reference\n", got, want)
	}
	if got, want := uint16(len(f.Sections)), other.GetSectionCount(); got != want {
		out += fmt.Sprintf("  verify: section count mismatch: %d here, %d in reference\n", got, want)
	}
	if out == "" {
		out = "  verify: segment and section counts agree\n"
	}
	return out
}
