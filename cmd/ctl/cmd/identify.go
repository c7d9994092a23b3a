package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jpfielding/djpeg.go/pkg/compress/djpeg"
	"github.com/jpfielding/djpeg.go/pkg/util"
	"github.com/spf13/cobra"
)

// identity is the identify command's report for one input.
type identity struct {
	Input           string `json:"input"`
	Bytes           int    `json:"bytes"`
	MD5             string `json:"md5"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Components      int    `json:"components"`
	ColorSpace      string `json:"colorSpace"`
	Progressive     bool   `json:"progressive"`
	Arithmetic      bool   `json:"arithmetic,omitempty"`
	RestartInterval int    `json:"restartInterval,omitempty"`
	JFIF            bool   `json:"jfif"`
	Adobe           bool   `json:"adobe"`
}

func NewIdentifyCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify [input...]",
		Short: "report JPEG dimensions and frame type",
		Long:  "parses markers up to the first scan and reports what the frame declares",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			verbose, _ := cmd.Flags().GetBool("verbose")
			for _, in := range args {
				id, err := identify(ctx, in, verbose)
				if err != nil {
					return fmt.Errorf("%s: %w", in, err)
				}
				out := cmd.OutOrStdout()
				switch format {
				case "text":
					fmt.Fprintf(out, "%s: %dx%d %d-component %s", id.Input, id.Width, id.Height, id.Components, id.ColorSpace)
					if id.Progressive {
						fmt.Fprint(out, " progressive")
					}
					if id.RestartInterval > 0 {
						fmt.Fprintf(out, " restart=%d", id.RestartInterval)
					}
					fmt.Fprintf(out, " %d bytes md5=%s\n", id.Bytes, id.MD5)
				default:
					j, _ := json.Marshal(id)
					fmt.Fprintln(out, string(j))
				}
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("format", "f", "text", "output format (text|json)")
	pf.BoolP("verbose", "v", false, "dump http requests")
	return cmd
}

func identify(ctx context.Context, uri string, verbose bool) (*identity, error) {
	rc, err := openInput(ctx, uri, verbose)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	d := djpeg.NewDecompressor(nil)
	defer d.Abort()
	if _, err := d.Write(data); err != nil {
		return nil, err
	}
	d.CloseInput()
	st, err := d.ReadHeader(true)
	if err != nil {
		return nil, err
	}
	if st != djpeg.HeaderOK {
		return nil, djpeg.ErrNoImage
	}
	h := d.Header()
	return &identity{
		Input:           uri,
		Bytes:           len(data),
		MD5:             util.Md5ThenHex(data),
		Width:           h.Width,
		Height:          h.Height,
		Components:      h.Components,
		ColorSpace:      h.ColorSpace.String(),
		Progressive:     h.Progressive,
		Arithmetic:      h.Arithmetic,
		RestartInterval: h.RestartInterval,
		JFIF:            h.SawJFIF,
		Adobe:           h.SawAdobe,
	}, nil
}
