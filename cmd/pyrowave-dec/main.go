// Command pyrowave-dec expands a .pyrowave file back into a YUV4MPEG2
// stream.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	pyrowave "github.com/ajroetker/go-pyrowave"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyrowave-dec",
		Short: "decode a .pyrowave file to a y4m stream",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			if input == "" && len(args) > 0 {
				input = args[0]
			}
			if output == "" && len(args) > 1 {
				output = args[1]
			}
			if input == "" || output == "" {
				return fmt.Errorf("input and output paths are required")
			}
			return runDecode(input, output)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("input", "i", "", "input .pyrowave path")
	pf.StringP("output", "o", "", "output .y4m path")
	pf.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "rotating log file path (default stderr)")
	return cmd
}

func configureLogging(cmd *cobra.Command) {
	levelText, _ := cmd.Flags().GetString("log-level")
	logFile, _ := cmd.Flags().GetString("log-file")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelText))); err != nil {
		level = slog.LevelInfo
	}

	var sink io.Writer = os.Stderr
	if logFile != "" {
		sink = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    64, // MB
			MaxBackups: 4,
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level})))
}

func runDecode(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	container, err := pyrowave.NewContainerReader(in)
	if err != nil {
		return err
	}
	hdr := container.Header()
	slog.Info("decoding", "input", inPath, "width", hdr.Width, "height", hdr.Height)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	y4m, err := pyrowave.NewY4MWriter(out, pyrowave.Y4MHeader{
		Width:        int(hdr.Width),
		Height:       int(hdr.Height),
		FrameRateNum: int(hdr.FrameRateNum),
		FrameRateDen: int(hdr.FrameRateDen),
		Chroma:       hdr.Chroma,
		FullRange:    hdr.FullRange,
	})
	if err != nil {
		return err
	}

	dec, err := pyrowave.NewDecoder(int(hdr.Width), int(hdr.Height), hdr.Chroma, nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	frame := pyrowave.NewFrame(int(hdr.Width), int(hdr.Height), hdr.Chroma)
	frameIndex := 0
	for {
		payload, err := container.ReadFrame()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if err := dec.PushPacket(payload); err != nil {
			slog.Warn("dropped packet", "frame", frameIndex, "err", err)
		}
		if !dec.Ready(true) {
			slog.Warn("incomplete frame, skipping", "frame", frameIndex)
			continue
		}
		if err := dec.DecodeFrame(frame, true); err != nil {
			return err
		}
		if err := y4m.WriteFrame(frame); err != nil {
			return err
		}
		frameIndex++
	}

	if err := y4m.Flush(); err != nil {
		return err
	}
	slog.Info("done", "frames", frameIndex)
	return nil
}
