package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jpfielding/djpeg.go/pkg/compress/djpeg"
	"github.com/spf13/cobra"
)

type segmentInfo struct {
	Offset int64  `json:"offset"`
	Marker string `json:"marker"`
	Length int    `json:"length,omitempty"`
	Data   string `json:"data,omitempty"`
}

func NewMarkersCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers [input]",
		Short: "list the marker segments of a JPEG",
		Long:  "reads the whole stream, entropy-coded scans included, and lists every marker with its offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			format, _ := cmd.Flags().GetString("format")
			verbose, _ := cmd.Flags().GetBool("verbose")
			uri = inputArg(uri, args)

			segs, err := listMarkers(ctx, uri, verbose)
			if err != nil {
				return fmt.Errorf("%s: %w", uri, err)
			}
			out := cmd.OutOrStdout()
			for _, s := range segs {
				switch format {
				case "text":
					fmt.Fprintf(out, "%10d %-6s %6d", s.Offset, s.Marker, s.Length)
					if s.Data != "" {
						fmt.Fprintf(out, " %s", s.Data)
					}
					fmt.Fprintln(out)
				default:
					j, _ := json.Marshal(s)
					fmt.Fprintln(out, string(j))
				}
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "JPEG file, http(s) URL or - for stdin")
	pf.StringP("format", "f", "text", "output format (text|json)")
	pf.BoolP("verbose", "v", false, "dump http requests")
	return cmd
}

func listMarkers(ctx context.Context, uri string, verbose bool) ([]segmentInfo, error) {
	rc, err := openInput(ctx, uri, verbose)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	d := djpeg.NewDecompressor(&djpeg.Options{SaveMarkers: true, BufferedImage: true})
	defer d.Abort()
	d.SetSource(rc)
	st, err := d.ReadHeader(false)
	if err != nil {
		return nil, err
	}
	if st == djpeg.HeaderOK {
		if err := d.StartDecompress(); err != nil {
			return nil, err
		}
		for {
			p, err := d.ConsumeInput()
			if err != nil {
				return nil, err
			}
			if p == djpeg.ProgressReachedEOI || d.InputComplete() {
				break
			}
		}
	}

	saved := d.Header().Markers
	var out []segmentInfo
	for _, s := range d.Segments() {
		si := segmentInfo{Offset: s.Offset, Marker: s.Marker.String(), Length: s.Length}
		if (s.Marker.IsAPP() || s.Marker == djpeg.MarkerCOM) && len(saved) > 0 {
			si.Data = preview(saved[0].Data)
			saved = saved[1:]
		}
		out = append(out, si)
	}
	return out, nil
}

// preview quotes the first bytes of a segment payload.
func preview(data []byte) string {
	const n = 24
	if len(data) > n {
		return strconv.Quote(string(data[:n])) + "..."
	}
	return strconv.Quote(string(data))
}
