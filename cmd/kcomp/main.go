// Command kcomp compresses and decompresses files with the adaptive block
// engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/khaledalam/kcomp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "1.0.2"

// Exit codes.
const (
	exitOK = iota
	exitUsage
	exitIO
	exitFormat
	exitCorruption
	exitInternal
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newCLI(osFS{}, os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

type cli struct {
	fsys   kcomp.FileSystem
	stdout io.Writer
	stderr io.Writer
}

func newCLI(fsys kcomp.FileSystem, stdout, stderr io.Writer) *cli {
	return &cli{fsys: fsys, stdout: stdout, stderr: stderr}
}

func (c *cli) usage() {
	fmt.Fprintf(c.stderr, `kcomp %s - adaptive block compression utility

Usage:
  kcomp <input>              Compress (output: <input>.kc)
  kcomp c <input> [output]   Compress a file
  kcomp d <input> [output]   Decompress a file
  kcomp b <input>            Benchmark compression
  kcomp i <input>            Inspect a container
  kcomp -v, --version        Show version and credits
  kcomp -h, --help           Show this help message

Options:
  -s, --silent               Print no summary
  -block-size <n>            Block size in bytes (default %d)
  -workers <n>               Blocks processed in parallel (default: CPUs)
  -strategy <name>           adaptive, exhaustive or fixed
  -algorithm <name>          Codec used by the fixed strategy
  -level <n>                 Level for library codecs (0: default)
  -cdc                       Content-defined block boundaries
  -blocks                    List every block when inspecting
  -debug                     Log every block

Examples:
  kcomp video.mp4                        # -> video.mp4.kc
  kcomp c document.txt archive.kc        # Explicit output
  kcomp d archive.kc                     # -> archive
  kcomp c -s -strategy exhaustive file.txt
`, version, kcomp.DefaultBlockSize)
}

func (c *cli) printVersion() {
	fmt.Fprintf(c.stdout, `kcomp %s

Adaptive block compression with per-block codec selection.

Author:  Khaled Alam
Website: https://khaledalam.net
GitHub:  https://github.com/khaledalam/kcomp
License: MIT
`, version)
}

// options holds the parsed command line of one command.
type options struct {
	silent    bool
	debug     bool
	blockSize int
	workers   int
	strategy  string
	algorithm string
	level     int
	cdc       bool
	blocks    bool
	args      []string
}

func (c *cli) parse(command string, args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("kcomp "+command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&o.silent, "s", false, "")
	fs.BoolVar(&o.silent, "silent", false, "")
	fs.BoolVar(&o.debug, "debug", false, "")
	fs.IntVar(&o.blockSize, "block-size", kcomp.DefaultBlockSize, "")
	fs.IntVar(&o.workers, "workers", 0, "")
	fs.StringVar(&o.strategy, "strategy", kcomp.StrategyAdaptive.String(), "")
	fs.StringVar(&o.algorithm, "algorithm", "", "")
	fs.IntVar(&o.level, "level", 0, "")
	fs.BoolVar(&o.cdc, "cdc", false, "")
	fs.BoolVar(&o.blocks, "blocks", false, "")

	// Flags may appear before, between and after file names.
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return o, nil
		}
		o.args = append(o.args, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func (o *options) config(logger *zap.Logger) (*kcomp.Config, error) {
	config := kcomp.DefaultConfig()
	config.BlockSize = o.blockSize
	if o.workers > 0 {
		config.Workers = o.workers
		config.MaxPendingBlocks = 4 * o.workers
	}
	strategy, err := kcomp.ParseStrategy(o.strategy)
	if err != nil {
		return nil, err
	}
	config.Strategy = strategy
	if o.algorithm != "" {
		algo, err := kcomp.ParseAlgorithm(o.algorithm)
		if err != nil {
			return nil, err
		}
		config.Algorithm = algo
		if o.strategy == kcomp.StrategyAdaptive.String() {
			config.Strategy = kcomp.StrategyFixed
		}
	}
	if config.Strategy == kcomp.StrategyFixed && o.algorithm == "" {
		return nil, fmt.Errorf("%w: the fixed strategy needs -algorithm", kcomp.ErrInvalidConfig)
	}
	if o.cdc {
		config.Splitting = kcomp.SplitContentDefined
	}
	config.Level = o.level
	config.Logger = logger
	return config, config.Validate()
}

func newLogger(o *options, stderr io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case o.debug:
		level = zapcore.DebugLevel
	case o.silent:
		level = zapcore.WarnLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.usage()
		return exitUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "-v", "--version":
		c.printVersion()
		return exitOK
	case "-h", "--help":
		c.usage()
		return exitOK
	case "c", "d", "b", "i":
	default:
		if strings.HasPrefix(command, "-") && command != "-s" && command != "--silent" {
			c.usage()
			return exitUsage
		}
		command, rest = "c", args
	}

	o, err := c.parse(command, rest)
	if err != nil {
		fmt.Fprintf(c.stderr, "kcomp: %v\n", err)
		return exitUsage
	}
	logger := newLogger(o, c.stderr)
	defer logger.Sync()

	switch command {
	case "c":
		err = c.compress(ctx, o, logger)
	case "d":
		err = c.decompress(ctx, o, logger)
	case "b":
		err = c.benchmark(ctx, o, logger)
	case "i":
		err = c.inspect(o)
	}
	if errors.Is(err, errUsage) {
		c.usage()
		return exitUsage
	}
	if err != nil {
		logger.Error("kcomp "+command+" failed", zap.Error(err))
	}
	return exitCode(err)
}

var errUsage = errors.New("usage")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, kcomp.ErrInvalidConfig), errors.Is(err, kcomp.ErrUnsupportedAlgorithm):
		return exitUsage
	case errors.Is(err, kcomp.ErrFormat):
		return exitFormat
	case errors.Is(err, kcomp.ErrCorruption):
		return exitCorruption
	case errors.Is(err, kcomp.ErrCodecInternal):
		return exitInternal
	default:
		return exitIO
	}
}

func paths(o *options, output func(string) string) (string, string, error) {
	switch len(o.args) {
	case 1:
		return o.args[0], output(o.args[0]), nil
	case 2:
		return o.args[0], o.args[1], nil
	default:
		return "", "", errUsage
	}
}

func (c *cli) compress(ctx context.Context, o *options, logger *zap.Logger) error {
	in, out, err := paths(o, kcomp.CompressedName)
	if err != nil {
		return err
	}
	config, err := o.config(logger)
	if err != nil {
		return err
	}
	e, err := kcomp.New(config)
	if err != nil {
		return err
	}
	started := time.Now()
	if err := e.CompressFile(ctx, c.fsys, in, out); err != nil {
		return err
	}
	if !o.silent {
		stats := e.GetStats()
		ratio := 0.0
		if stats.OriginalBytes > 0 {
			ratio = 100 * float64(stats.CompressedBytes) / float64(stats.OriginalBytes)
		}
		fmt.Fprintf(c.stderr, "\n%s -> %s\n", formatSize(stats.OriginalBytes), formatSize(stats.CompressedBytes))
		fmt.Fprintf(c.stderr, "Ratio: %.1f%% | Time: %.2fs\n", ratio, time.Since(started).Seconds())
		fmt.Fprintf(c.stderr, "Output: %s\n", out)
	}
	return nil
}

func (c *cli) decompress(ctx context.Context, o *options, logger *zap.Logger) error {
	in, out, err := paths(o, kcomp.DecompressedName)
	if err != nil {
		return err
	}
	e, err := kcomp.New(&kcomp.Config{Workers: o.workers, Logger: logger})
	if err != nil {
		return err
	}
	started := time.Now()
	if err := e.DecompressFile(ctx, c.fsys, in, out); err != nil {
		return err
	}
	if !o.silent {
		stats := e.GetStats()
		fmt.Fprintf(c.stderr, "\n%s -> %s\n", formatSize(stats.ContainerBytes), formatSize(stats.DecompressedBytes))
		fmt.Fprintf(c.stderr, "Time: %.2fs\n", time.Since(started).Seconds())
		fmt.Fprintf(c.stderr, "Output: %s\n", out)
	}
	return nil
}

func (c *cli) readFile(name string) ([]byte, error) {
	f, err := c.fsys.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (c *cli) benchmark(ctx context.Context, o *options, logger *zap.Logger) error {
	if len(o.args) != 1 {
		return errUsage
	}
	data, err := c.readFile(o.args[0])
	if err != nil {
		return err
	}
	config, err := o.config(logger)
	if err != nil {
		return err
	}
	results, err := kcomp.Benchmark(ctx, data, config, kcomp.AllAlgorithms)
	for _, r := range results {
		fmt.Fprintf(c.stdout, "%-10s  out=%10d  ratio=%7.2f%%  c=%8.4fs  d=%8.4fs\n",
			r.Name, r.CompressedSize, 100*r.Ratio, r.CompressDuration.Seconds(), r.DecompressDuration.Seconds())
	}
	return err
}

func (c *cli) inspect(o *options) error {
	if len(o.args) != 1 {
		return errUsage
	}
	f, err := c.fsys.OpenFile(o.args[0], os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := kcomp.Inspect(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "version:     %d\n", info.Version)
	fmt.Fprintf(c.stdout, "block size:  %d\n", info.BlockSize)
	fmt.Fprintf(c.stdout, "blocks:      %d\n", info.BlockCount)
	fmt.Fprintf(c.stdout, "original:    %s\n", formatSize(int64(info.TotalLength)))
	fmt.Fprintf(c.stdout, "container:   %s (%.1f%%)\n", formatSize(info.Size), 100*info.CompressionRatio())

	counts := info.AlgorithmCounts()
	algos := make([]kcomp.Algorithm, 0, len(counts))
	for algo := range counts {
		algos = append(algos, algo)
	}
	sort.Slice(algos, func(i, j int) bool { return algos[i] < algos[j] })
	for _, algo := range algos {
		fmt.Fprintf(c.stdout, "  %-10s %d\n", algo, counts[algo])
	}

	if o.blocks {
		for _, b := range info.Blocks {
			fmt.Fprintf(c.stdout, "%8d  %-10s  %10d -> %10d  crc=%08x  @%d\n",
				b.Index, b.Algorithm, b.OriginalLength, b.CompressedLength, b.Checksum, b.Offset)
		}
	}
	return nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
