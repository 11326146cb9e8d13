// cmd/dpack/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"dpack/internal/errors"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"
	"dpack/internal/preview"
	"dpack/internal/progress"
	"dpack/internal/session"
	"dpack/internal/watch"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

var (
	configPath  string
	verbose     bool
	displayName string
)

var rootCmd = &cobra.Command{
	Use:   "dpack",
	Short: "dpack edits datapack archives in place",
	Long: `dpack opens a zip datapack as a virtual filesystem. Edits are kept
next to the archive, keyed by its fingerprint, and merged back into a new
archive on export.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			return nil
		}
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to DPACK_CONFIG or config/config.<env>.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
	rootCmd.PersistentFlags().StringVarP(&displayName, "name", "n", "", "Display name for the root folder")

	var lsCmd = &cobra.Command{
		Use:   "ls <archive>",
		Short: "List archive entries with checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			blue := color.New(color.FgBlue).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			edited := make(map[string]bool)
			for _, p := range ws.edits() {
				edited[ws.session.OriginalPath(p)] = true
			}

			ctx := cmd.Context()
			for _, e := range ws.archive.Entries() {
				if e.IsDir {
					fmt.Printf("%16s  %8s  %s\n", "", "", blue(e.Path+"/"))
					continue
				}
				sum, err := ws.archive.Checksum(ctx, e.Path)
				if err != nil {
					return fmt.Errorf("checksumming %s: %w", e.Path, err)
				}
				name := e.Path
				if edited[e.Path] {
					name = yellow(e.Path + " (edited)")
				}
				fmt.Printf("%016x  %8s  %s\n", sum, humanize.IBytes(e.Size), name)
			}
			return nil
		},
	}

	var treeCmd = &cobra.Command{
		Use:   "tree <archive>",
		Short: "Show the folder tree as it will be exported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			blue := color.New(color.FgBlue, color.Bold).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			edited := make(map[string]bool)
			for _, p := range ws.session.OverlayPaths() {
				edited[p] = true
			}

			pathtree.Walk(ws.session.Tree(), func(n *pathtree.Node, depth int) bool {
				indent := strings.Repeat("  ", depth)
				switch {
				case n.IsDir:
					fmt.Printf("%s%s/\n", indent, blue(n.Name))
				case edited[n.Path]:
					fmt.Printf("%s%s %s\n", indent, n.Name, yellow("*"))
				default:
					fmt.Printf("%s%s\n", indent, n.Name)
				}
				return true
			})
			return nil
		},
	}

	var catCmd = &cobra.Command{
		Use:   "cat <archive> <path>",
		Short: "Print an entry, with pending edits applied",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			c, err := ws.session.Resolve(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(c.Bytes())
			return err
		},
	}

	var setCmd = &cobra.Command{
		Use:   "set <archive> <path>",
		Short: "Record an edit for an entry",
		Long:  `Records new content for path. Use --text for inline text or --file to read a local file.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			file, _ := cmd.Flags().GetString("file")
			if (text == "") == (file == "") {
				return fmt.Errorf("exactly one of --text or --file is required")
			}

			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			c := overlay.Text(text)
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				c = overlay.Binary(data)
			}
			if err := ws.session.Write(args[1], c); err != nil {
				return err
			}

			fmt.Printf("Recorded %s edit for %s\n", c.Kind, args[1])
			return nil
		},
	}
	setCmd.Flags().StringP("text", "t", "", "Text content")
	setCmd.Flags().StringP("file", "f", "", "Local file with the new content")

	var addImageCmd = &cobra.Command{
		Use:   "add-image <archive> <dir> <id> <image-file>",
		Short: "Add an image to an image folder",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			data, err := os.ReadFile(args[3])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[3], err)
			}
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[3])), ".")
			}

			p, err := ws.session.AddImage(args[1], args[2], format, data)
			if err != nil {
				return err
			}
			fmt.Println("Added", p)
			return nil
		},
	}
	addImageCmd.Flags().String("format", "", "Image format (png, webp); defaults to the file extension")

	var imagesCmd = &cobra.Command{
		Use:   "images <archive> <dir>",
		Short: "Resolve the images of a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			if !session.IsImageFolder(args[1]) {
				color.Yellow("%s is not a known image folder", args[1])
			}

			res, err := ws.session.ResolveImages(cmd.Context(), args[1])
			if res == nil {
				return err
			}

			registry := preview.NewRegistry(preview.Options{
				ThumbSize:  ws.cfg.Preview.ThumbSize,
				MaxHandles: ws.cfg.Preview.MaxHandles,
			}, logger)
			defer registry.Close()

			images := make(map[string][]byte, len(res.Contents))
			for p, c := range res.Contents {
				images[p] = c.Bytes()
			}
			previews, failed := registry.NewGallery().Replace(images)

			for _, pv := range previews {
				fmt.Printf("%-5s %5dx%-5d %s\n", pv.Format, pv.Width, pv.Height, pv.Path)
			}
			failed = append(failed, res.Failed...)
			sort.Strings(failed)
			red := color.New(color.FgRed).SprintFunc()
			for _, p := range failed {
				fmt.Println(red("failed"), p)
			}
			if len(failed) > 0 {
				return errors.PartialDirectory(res.Dir, failed)
			}
			return nil
		},
	}

	var editsCmd = &cobra.Command{
		Use:   "edits <archive>",
		Short: "List pending edits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			paths := ws.session.OverlayPaths()
			if len(paths) == 0 {
				fmt.Println("No pending edits")
				return nil
			}
			for _, p := range paths {
				c, err := ws.session.Resolve(cmd.Context(), p)
				if err != nil {
					return err
				}
				status := yellow("modified")
				if !ws.archive.Has(ws.session.OriginalPath(p)) {
					status = green("new     ")
				}
				fmt.Printf("%s  %-6s %8s  %s\n", status, c.Kind, humanize.IBytes(uint64(c.Len())), p)
			}
			return nil
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export <archive>",
		Short: "Write the archive with all edits merged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = ws.session.ExportFileName()
			}

			bar := progress.NewBar(os.Stderr)
			data, err := ws.session.Export(cmd.Context(), bar.Update)
			bar.Finish()
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			color.Green("Exported %s (%s)", out, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
	exportCmd.Flags().StringP("output", "o", "", "Output file (defaults to <name>.zip)")

	var watchCmd = &cobra.Command{
		Use:   "watch <archive> <local-dir>",
		Short: "Mirror a local folder into the archive's edits",
		Long: `Records every file under local-dir as an edit, then keeps doing so for
files created or changed until interrupted. --prefix places the files under
a folder of the archive.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			prefix, _ := cmd.Flags().GetString("prefix")
			m, err := watch.NewMirror(args[1], prefix, ws.session, logger)
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := m.Sync()
			if err != nil {
				return fmt.Errorf("initial sync: %w", err)
			}
			fmt.Printf("Mirrored %d files, watching %s (Ctrl+C to stop)\n", n, args[1])

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := m.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	watchCmd.Flags().StringP("prefix", "p", "", "Archive folder the local files map to")

	rootCmd.AddCommand(lsCmd, treeCmd, catCmd, setCmd, addImageCmd, imagesCmd, editsCmd, exportCmd, watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
