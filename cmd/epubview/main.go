package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yuanying/epubview/internal/book"
	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/state"
)

const (
	defaultLogLevel  = "warn"
	defaultLogFormat = "console"
)

// cliOptions is what every command that opens a book reads from its flags.
type cliOptions struct {
	Path      string
	StatePath string
	Book      book.Options
	Logger    *zap.Logger
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epubview",
		Short: "Inspect, paginate and read EPUB books",
		Long: `epubview opens EPUB books, addresses locations inside them with
EPUB canonical fragment identifiers (CFIs) and lays chapters out into pages.

Reading positions, bookmarks and generated page lists are kept per book in a
state file.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.Int("width", book.DefaultWidth, "Viewport width in pixels")
	flags.Int("height", book.DefaultHeight, "Viewport height in pixels")
	flags.Int("gap", 0, "Column gap in pixels (0: an eighth of the width)")
	flags.Bool("spreads", false, "Show two pages side by side on wide viewports")
	flags.Int("min-spread-width", 0, "Narrowest viewport that shows spreads (default 768)")
	flags.Bool("force-single", false, "Never show spreads")
	flags.String("layout", "", "Override the book layout: reflowable or pre-paginated")
	flags.String("state", state.DefaultPath(), "Reading state file (empty: keep state in memory)")
	flags.Bool("restore", false, "Reuse the package structure saved in the state file")
	flags.String("offline-dir", "", "Read books from an offline copy in this directory once stored")
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", defaultLogFormat, "Log format: console or json")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newInfoCmd(),
		newTOCCmd(),
		newCFICmd(),
		newLocationsCmd(),
		newPaginateCmd(),
		newSearchCmd(),
		newCoverCmd(),
		newOfflineCmd(),
		newReadCmd(),
	)
	return rootCmd
}

// readCLIOptions validates the persistent flags. args[0] is the book path.
func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	flags := cmd.Flags()
	var opts cliOptions
	if len(args) > 0 {
		opts.Path = args[0]
	}

	width, _ := flags.GetInt("width")
	height, _ := flags.GetInt("height")
	if width <= 0 {
		return opts, fmt.Errorf("--width must be positive: %d", width)
	}
	if height <= 0 {
		return opts, fmt.Errorf("--height must be positive: %d", height)
	}
	gap, _ := flags.GetInt("gap")
	if gap < 0 {
		return opts, fmt.Errorf("--gap must not be negative: %d", gap)
	}
	minSpread, _ := flags.GetInt("min-spread-width")
	if minSpread < 0 {
		return opts, fmt.Errorf("--min-spread-width must not be negative: %d", minSpread)
	}
	layoutName, _ := flags.GetString("layout")
	switch layoutName {
	case "", "reflowable", "pre-paginated":
	default:
		return opts, fmt.Errorf("--layout must be reflowable or pre-paginated: %q", layoutName)
	}

	level, _ := flags.GetString("log-level")
	level = strings.ToLower(level)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return opts, fmt.Errorf("--log-level must be one of debug, info, warn, error: %q", level)
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = "debug"
	}
	format, _ := flags.GetString("log-format")
	switch strings.ToLower(format) {
	case "console", "json":
	default:
		return opts, fmt.Errorf("--log-format must be console or json: %q", format)
	}
	opts.Logger = buildLogger(cmd.ErrOrStderr(), level, format)

	spreads, _ := flags.GetBool("spreads")
	forceSingle, _ := flags.GetBool("force-single")
	restore, _ := flags.GetBool("restore")
	opts.StatePath, _ = flags.GetString("state")
	opts.Book = book.Options{
		Width:          width,
		Height:         height,
		Gap:            gap,
		Spreads:        spreads,
		MinSpreadWidth: minSpread,
		ForceSingle:    forceSingle,
		Restore:        restore,
		Logger:         opts.Logger,
	}
	opts.Book.LayoutOverride.Layout = layoutName

	if dir, _ := flags.GetString("offline-dir"); dir != "" {
		opts.Book.Offline = true
		opts.Book.OfflineStore = epub.NewDirStore(dir)
	}
	return opts, nil
}

// buildLogger writes leveled logs to w. Unknown levels log at info.
func buildLogger(w io.Writer, level, format string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(cfg)
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), lvl))
}

// openBook opens the book named on the command line with the state store
// from --state.
func openBook(cmd *cobra.Command, args []string, configure func(*book.Options)) (*book.Book, cliOptions, error) {
	opts, err := readCLIOptions(cmd, args)
	if err != nil {
		return nil, opts, err
	}
	store, err := state.Open(opts.StatePath, opts.Logger)
	if err != nil {
		return nil, opts, err
	}
	opts.Book.Store = store
	if configure != nil {
		configure(&opts.Book)
	}

	b := book.New(opts.Book)
	if err := b.Open(cmd.Context(), opts.Path); err != nil {
		return nil, opts, err
	}
	if err := b.Ready(cmd.Context()); err != nil {
		b.Close()
		return nil, opts, err
	}
	return b, opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
