package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubview/internal/book"
	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/epub"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <book.epub>",
		Short: "Print the metadata and spine of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := openBook(cmd, args, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), b.Package())
			}
			md := b.Metadata()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Title:\t%s\n", md.Title)
			fmt.Fprintf(w, "Creator:\t%s\n", md.Creator)
			fmt.Fprintf(w, "Identifier:\t%s\n", md.Identifier)
			fmt.Fprintf(w, "Language:\t%s\n", md.Language)
			fmt.Fprintf(w, "Direction:\t%s\n", md.EffectiveDirection())
			fmt.Fprintf(w, "Layout:\t%s\n", b.Layout().Layout)
			fmt.Fprintf(w, "Key:\t%s\n", b.Key())
			if cover := b.Package().DetectCover(); cover != nil {
				fmt.Fprintf(w, "Cover:\t%s (%s)\n", cover.URL, cover.DetectionMethod)
			}
			fmt.Fprintf(w, "Spine:\t%d items\n", len(b.Spine()))
			for i, item := range b.Spine() {
				linear := ""
				if !item.IsLinear() {
					linear = " (non-linear)"
				}
				fmt.Fprintf(w, "  %d\t%s%s\n", i, item.URL, linear)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print the parsed package as JSON")
	return cmd
}

func newTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc <book.epub>",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := openBook(cmd, args, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			toc, err := b.TOC(cmd.Context())
			if err != nil {
				return err
			}
			printTOC(cmd.OutOrStdout(), toc, 0)
			return nil
		},
	}
}

func printTOC(w io.Writer, items []epub.TOCItem, depth int) {
	for _, item := range items {
		fmt.Fprintf(w, "%s%s\t%s\n", strings.Repeat("  ", depth), item.Label, item.Href)
		printTOC(w, item.Subitems, depth+1)
	}
}

func newCFICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfi",
		Short: "Parse and compare CFIs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "parse <cfi>",
		Short: "Print the parts of a CFI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfi.Parse(args[0])
			if !c.Valid() {
				return fmt.Errorf("invalid CFI: %s", args[0])
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "spinePos: %d\n", c.SpinePos)
			if c.SpineID != "" {
				fmt.Fprintf(w, "spineId: %s\n", c.SpineID)
			}
			for _, step := range c.Steps {
				fmt.Fprintf(w, "step: %s %d %s\n", step.Type, step.Index, step.ID)
			}
			if c.HasOffset() {
				fmt.Fprintf(w, "offset: %d\n", c.CharacterOffset)
			}
			if c.IsRange() {
				fmt.Fprintf(w, "end: %s\n", c.End)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Print -1, 0 or 1 as a sorts before, with or after b",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if !cfi.IsCFI(arg) || !cfi.Parse(arg).Valid() {
					return fmt.Errorf("invalid CFI: %s", arg)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfi.CompareStrings(args[0], args[1]))
			return nil
		},
	})
	return cmd
}

func newLocationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations <book.epub>",
		Short: "Generate the locations index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			breakChars, _ := cmd.Flags().GetInt("break")
			if breakChars <= 0 {
				return fmt.Errorf("--break must be positive: %d", breakChars)
			}
			b, _, err := openBook(cmd, args, func(o *book.Options) { o.BreakChars = breakChars })
			if err != nil {
				return err
			}
			defer b.Close()

			locs, err := b.GenerateLocations(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), locs)
			}
			for _, loc := range locs {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}
	cmd.Flags().Int("break", 150, "Characters between two locations")
	cmd.Flags().Bool("json", false, "Print locations as a JSON array")
	return cmd
}

func newPaginateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paginate <book.epub>",
		Short: "Lay out every chapter and print the page list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, opts, err := openBook(cmd, args, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			items, err := b.GeneratePagination(cmd.Context(), opts.Book.Width, opts.Book.Height)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, item := range items {
				fmt.Fprintf(w, "%d\t%s\n", item.Page, item.CFI)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print the page list as JSON")
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <book.epub> <query>",
		Short: "Find text in every chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := openBook(cmd, args[:1], nil)
			if err != nil {
				return err
			}
			defer b.Close()

			results, err := b.Search(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.CFI, strings.Join(strings.Fields(r.Excerpt), " "))
			}
			return nil
		},
	}
}

func newCoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover <book.epub>",
		Short: "Write a thumbnail of the cover image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxWidth, _ := cmd.Flags().GetInt("max-width")
			if maxWidth <= 0 {
				return fmt.Errorf("--max-width must be positive: %d", maxWidth)
			}
			b, _, err := openBook(cmd, args, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			thumb, err := b.CoverThumbnail(maxWidth)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = defaultCoverPath(args[0], thumb.Format)
			}
			if err := os.WriteFile(out, thumb.Data, 0644); err != nil {
				return fmt.Errorf("failed to write cover: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d)\n", out, thumb.Width, thumb.Height)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path (default: input name with -cover suffix)")
	cmd.Flags().Int("max-width", 300, "Maximum thumbnail width in pixels")
	return cmd
}

func defaultCoverPath(input, format string) string {
	ext := ".jpg"
	if format == "png" {
		ext = ".png"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "-cover" + ext
}

func newOfflineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offline <book.epub>",
		Short: "Copy a book into the --offline-dir store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, opts, err := openBook(cmd, args, nil)
			if err != nil {
				return err
			}
			defer b.Close()
			if opts.Book.OfflineStore == nil {
				return errors.New("--offline-dir is required")
			}
			if err := b.StoreOffline(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", b.Key())
			return nil
		},
	}
}
