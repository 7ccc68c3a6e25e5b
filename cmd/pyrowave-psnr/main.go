// Command pyrowave-psnr compares two YUV4MPEG2 streams frame by frame.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	pyrowave "github.com/ajroetker/go-pyrowave"
)

func main() {
	cmd := &cobra.Command{
		Use:   "pyrowave-psnr <reference.y4m> <distorted.y4m>",
		Short: "per-frame weighted YCbCr PSNR between two y4m streams",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1])
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(refPath, distPath string) error {
	refFile, err := os.Open(refPath)
	if err != nil {
		return err
	}
	defer refFile.Close()
	distFile, err := os.Open(distPath)
	if err != nil {
		return err
	}
	defer distFile.Close()

	ref, err := pyrowave.NewY4MReader(refFile)
	if err != nil {
		return err
	}
	dist, err := pyrowave.NewY4MReader(distFile)
	if err != nil {
		return err
	}

	rh, dh := ref.Header(), dist.Header()
	if rh.Width != dh.Width || rh.Height != dh.Height || rh.Chroma != dh.Chroma {
		return fmt.Errorf("stream mismatch: %dx%d vs %dx%d", rh.Width, rh.Height, dh.Width, dh.Height)
	}

	a := pyrowave.NewFrame(rh.Width, rh.Height, rh.Chroma)
	b := pyrowave.NewFrame(rh.Width, rh.Height, rh.Chroma)

	var sum float64
	frames := 0
	for {
		if err := ref.ReadFrame(a); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if err := dist.ReadFrame(b); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		psnr := pyrowave.FramePSNR(a, b)
		fmt.Printf("frame %d: %.3f dB\n", frames, psnr)
		sum += psnr
		frames++
	}
	if frames == 0 {
		return fmt.Errorf("no frames compared")
	}
	fmt.Printf("average over %d frames: %.3f dB\n", frames, sum/float64(frames))
	return nil
}
