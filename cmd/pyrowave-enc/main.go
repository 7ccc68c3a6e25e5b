// Command pyrowave-enc compresses a YUV4MPEG2 stream into a .pyrowave
// file at a fixed byte budget per frame.
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
		Use:   "pyrowave-enc",
		Short: "encode a y4m stream to a .pyrowave file",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			budget, _ := cmd.Flags().GetInt("frame-budget")
			trace, _ := cmd.Flags().GetString("trace")
			mtu, _ := cmd.Flags().GetInt("mtu")
			reportStats, _ := cmd.Flags().GetBool("report-stats")

			if input == "" && len(args) > 0 {
				input = args[0]
			}
			if output == "" && len(args) > 1 {
				output = args[1]
			}
			if input == "" || output == "" {
				return fmt.Errorf("input and output paths are required")
			}
			if budget <= 0 {
				return fmt.Errorf("frame-budget must be positive")
			}
			return runEncode(input, output, trace, budget, mtu, reportStats)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("input", "i", "", "input .y4m path")
	pf.StringP("output", "o", "", "output .pyrowave path")
	pf.Int("frame-budget", 400_000, "target bytes per frame")
	pf.Int("mtu", 0, "split frames at this packet boundary (0 = whole frame)")
	pf.String("trace", "", "capture transport packets to this path")
	pf.Bool("report-stats", false, "log per-band bitrates and plane entropy per frame")
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

func runEncode(inPath, outPath, tracePath string, frameBudget, mtu int, reportStats bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	y4m, err := pyrowave.NewY4MReader(in)
	if err != nil {
		return err
	}
	hdr := y4m.Header()
	slog.Info("encoding", "input", inPath, "width", hdr.Width, "height", hdr.Height,
		"rate", fmt.Sprintf("%d:%d", hdr.FrameRateNum, hdr.FrameRateDen), "budget", frameBudget)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	container, err := pyrowave.NewContainerWriter(out, pyrowave.ContainerHeader{
		Width:        int32(hdr.Width),
		Height:       int32(hdr.Height),
		Chroma:       hdr.Chroma,
		FullRange:    hdr.FullRange,
		FrameRateNum: int32(hdr.FrameRateNum),
		FrameRateDen: int32(hdr.FrameRateDen),
	})
	if err != nil {
		return err
	}

	var trace *pyrowave.TraceWriter
	if tracePath != "" {
		tf, err := os.Create(tracePath)
		if err != nil {
			return err
		}
		defer tf.Close()
		if trace, err = pyrowave.NewTraceWriter(tf); err != nil {
			return err
		}
		defer trace.Close()
		slog.Info("capturing packet trace", "path", tracePath, "session", trace.Session())
	}

	enc, err := pyrowave.NewEncoder(hdr.Width, hdr.Height, hdr.Chroma, nil)
	if err != nil {
		return err
	}
	defer enc.Close()

	frame := pyrowave.NewFrame(hdr.Width, hdr.Height, hdr.Chroma)
	var pktBuf []byte
	frameIndex := 0
	for {
		if err := y4m.ReadFrame(frame); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		encoded, err := enc.EncodeFrame(frame, frameBudget)
		if err != nil {
			return err
		}
		if encoded.Overflow {
			slog.Warn("rate control overflow", "frame", frameIndex)
		}

		boundary := mtu
		if boundary <= 0 {
			boundary = max(encoded.PayloadSize(), 4*pyrowave.HeaderSize)
		}
		var packets []pyrowave.Packet
		pktBuf, packets, err = encoded.Packetize(pktBuf[:0], boundary)
		if err != nil {
			return err
		}

		if err := container.WriteFrame(pktBuf); err != nil {
			return err
		}
		if trace != nil {
			for _, p := range packets {
				if err := trace.WritePacket(pktBuf[p.Offset : p.Offset+p.Size]); err != nil {
					return err
				}
			}
			if err := trace.EndFrame(); err != nil {
				return err
			}
		}

		if reportStats {
			stats := encoded.Stats()
			for _, bs := range stats.Bands {
				slog.Info("band", "frame", frameIndex, "component", bs.Component,
					"level", bs.Level, "band", bs.Band.String(), "bpp", fmt.Sprintf("%.3f", bs.BitsPerPixel))
			}
			for j, e := range stats.PlaneEntropy {
				slog.Info("plane", "frame", frameIndex, "plane", j,
					"bytes", stats.PlaneBytes[j], "entropy", fmt.Sprintf("%.1f%%", 100*e))
			}
		}

		slog.Debug("frame encoded", "frame", frameIndex, "bytes", len(pktBuf), "packets", len(packets))
		frameIndex++
	}

	slog.Info("done", "frames", frameIndex)
	return nil
}
