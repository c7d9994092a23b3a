package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/djpeg.go/pkg/compress/djpeg"
	"github.com/jpfielding/djpeg.go/pkg/sink"
	"github.com/jpfielding/djpeg.go/pkg/spill"
	"github.com/jpfielding/djpeg.go/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [input]",
		Short: "decode a JPEG to pnm, png, tiff or raw samples",
		Long:  "decodes a baseline or progressive JPEG; the output format follows --format or the output file's extension",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			outPath, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")
			verbose, _ := cmd.Flags().GetBool("verbose")
			digest, _ := cmd.Flags().GetBool("digest")

			opts, err := decodeOptions(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = "pnm"
				if outPath != "" && outPath != "-" {
					format = outPath
				}
			}
			f, err := sink.ParseFormat(format)
			if err != nil {
				return err
			}

			uri = inputArg(uri, args)
			in, err := openInput(ctx, uri, verbose)
			if err != nil {
				return err
			}
			defer in.Close()
			px, err := djpeg.DecodePixels(bufio.NewReader(in), opts)
			if err != nil {
				return fmt.Errorf("decode %s: %w", uri, err)
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				fo, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer fo.Close()
				out = fo
			}
			bw := bufio.NewWriter(out)
			if err := sink.Write(bw, f, px); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}

			attrs := []any{
				slog.String("input", uri),
				slog.Int("width", px.Width),
				slog.Int("height", px.Height),
				slog.Int("components", px.Components),
				slog.String("colorSpace", px.ColorSpace.String()),
				slog.String("format", string(f)),
			}
			if digest {
				attrs = append(attrs, slog.String("md5", util.Md5ThenHex(px.Pix)))
			}
			slog.InfoContext(ctx, "decoded", attrs...)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "JPEG file, http(s) URL or - for stdin")
	pf.StringP("out", "o", "-", "output path, - for stdout")
	pf.StringP("format", "f", "", "output format (pnm|png|tiff|raw|raw.zst), default from --out")
	pf.BoolP("verbose", "v", false, "dump http requests")
	pf.Bool("digest", false, "log the md5 of the decoded samples")
	addDecodeFlags(pf)
	return cmd
}

func addDecodeFlags(pf *pflag.FlagSet) {
	pf.Int("scale", 1, "scale the output by 1/N (1, 2, 4, 8)")
	pf.String("dct", "islow", "inverse DCT (islow|ifast|float)")
	pf.Bool("gray", false, "decode to grayscale")
	pf.Int("colors", 0, "quantize to at most N colors")
	pf.String("dither", "fs", "dither for --colors (fs|ordered|none)")
	pf.Bool("nosmooth", false, "disable progressive block smoothing")
	pf.Bool("nofancy", false, "disable fancy upsampling")
	pf.Int64("memory-limit", 0, "fail when the decoder needs more bytes than this")
	pf.Int64("max-memory", 0, "spill coefficient arrays beyond this many bytes")
	pf.String("spill-dir", "", "directory for spill files, default the system temp dir")
}

func decodeOptions(cmd *cobra.Command) (*djpeg.Options, error) {
	fl := cmd.Flags()
	opts := djpeg.DefaultOptions()
	opts.ScaleDenom, _ = fl.GetInt("scale")
	switch opts.ScaleDenom {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("--scale must be 1, 2, 4 or 8, got %d", opts.ScaleDenom)
	}

	switch dct, _ := fl.GetString("dct"); strings.ToLower(dct) {
	case "islow":
		opts.DCTMethod = djpeg.DCTIslow
	case "ifast":
		opts.DCTMethod = djpeg.DCTIfast
	case "float":
		opts.DCTMethod = djpeg.DCTFloat
	default:
		return nil, fmt.Errorf("unknown --dct %q", dct)
	}

	if gray, _ := fl.GetBool("gray"); gray {
		opts.OutColorSpace = djpeg.ColorGray
	}
	if colors, _ := fl.GetInt("colors"); colors > 0 {
		opts.QuantizeColors = true
		opts.Colors = colors
	}
	switch dither, _ := fl.GetString("dither"); strings.ToLower(dither) {
	case "fs":
		opts.Dither = djpeg.DitherFS
	case "ordered":
		opts.Dither = djpeg.DitherOrdered
	case "none":
		opts.Dither = djpeg.DitherNone
	default:
		return nil, fmt.Errorf("unknown --dither %q", dither)
	}
	opts.DisableBlockSmoothing, _ = fl.GetBool("nosmooth")
	opts.DisableFancyUpsampling, _ = fl.GetBool("nofancy")
	opts.MemoryLimit, _ = fl.GetInt64("memory-limit")
	opts.MaxMemoryToUse, _ = fl.GetInt64("max-memory")
	if opts.MaxMemoryToUse > 0 {
		dir, _ := fl.GetString("spill-dir")
		opts.BackingStore = spill.NewFactory(dir)
	}
	return opts, nil
}
