// Command emberon encodes any file into a lossless PNG (or QOI) image and
// decodes it back.
package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/emberon/emberon"
)

var (
	versionGitCommit string
	versionBuildTime string
)

var (
	success = color.New(color.FgGreen)
	notice  = color.New(color.FgYellow)
	heading = color.New(color.FgCyan)
	failure = color.New(color.FgRed)
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "emberon",
		Usage:   "Encode any file into a lossless image and decode it back",
		Version: fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"EMBERON_LOG_LEVEL"}},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not show progress bars", EnvVars: []string{"EMBERON_QUIET"}},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Encode a file into an image (.png, or .qoi)",
				ArgsUsage: "<input> <output>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Value: emberon.DefaultLevel, Usage: "zlib compression level 0-9", EnvVars: []string{"EMBERON_LEVEL"}},
					&cli.BoolFlag{Name: "no-compress", Usage: "Store the file without compression", EnvVars: []string{"EMBERON_NO_COMPRESS"}},
					&cli.StringFlag{Name: "png-compression", Value: "default", Usage: "PNG container compression (default, none, speed, best)", EnvVars: []string{"EMBERON_PNG_COMPRESSION"}},
					&cli.IntFlag{Name: "window", Value: emberon.DefaultEncodeWindow, Usage: "Bytes handed to the compressor at once", EnvVars: []string{"EMBERON_ENCODE_WINDOW"}},
				},
				Action: encodeAction,
			},
			{
				Name:      "decode",
				Usage:     "Decode an image back to the original file",
				ArgsUsage: "<input> [output]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify-while-decoding", Usage: "Check the digest during decompression instead of before it", EnvVars: []string{"EMBERON_VERIFY_WHILE_DECODING"}},
					&cli.IntFlag{Name: "window", Value: emberon.DefaultDecodeWindow, Usage: "Bytes produced by the decompressor at once", EnvVars: []string{"EMBERON_DECODE_WINDOW"}},
				},
				Action: decodeAction,
			},
			{
				Name:      "inspect",
				Usage:     "Show the image header without decoding",
				ArgsUsage: "<input>",
				Action:    inspectAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		failure.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func progressFor(c *cli.Context) emberon.Progress {
	if c.Bool("quiet") {
		return emberon.NopProgress
	}
	return newBarProgress()
}

func parsePNGCompression(name string) (png.CompressionLevel, error) {
	switch name {
	case "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("--png-compression should be one of default, none, speed, best")
	}
}

func encodeAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("encode needs <input> <output>")
	}
	level := c.Int("level")
	if level < 0 || level > 9 {
		return fmt.Errorf("--level must be between 0 and 9")
	}
	pngLevel, err := parsePNGCompression(c.String("png-compression"))
	if err != nil {
		return err
	}

	opts := emberon.DefaultEncodeOptions()
	opts.Compress = !c.Bool("no-compress")
	opts.Level = level
	opts.Window = c.Int("window")
	opts.PNGCompression = pngLevel
	opts.Progress = progressFor(c)

	s, err := emberon.EncodeFile(c.Args().Get(0), c.Args().Get(1), opts)
	if err != nil {
		return err
	}

	success.Printf("✓ Encoded %s -> %s [%dx%d %s]\n", s.Source, s.Dest, s.Width, s.Height, s.Container)
	notice.Printf("   Compression: %s (orig %s → comp %s)\n",
		s.Method, humanize.IBytes(s.OriginalSize), humanize.IBytes(s.CompressedSize))
	return nil
}

func decodeAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return fmt.Errorf("decode needs <input> [output]")
	}

	opts := emberon.DefaultDecodeOptions()
	opts.Window = c.Int("window")
	opts.VerifyWhileDecoding = c.Bool("verify-while-decoding")
	opts.Progress = progressFor(c)

	s, err := emberon.DecodeFile(c.Args().Get(0), c.Args().Get(1), opts)
	if err != nil {
		if emberon.IsCorruption(err) {
			return errors.WithMessage(err, "image data is corrupt, no output written")
		}
		return err
	}

	success.Printf("✓ Decoded %s -> %s (%s)\n", s.Source, s.Dest, humanize.IBytes(s.OriginalSize))
	if s.Legacy {
		notice.Println("   Legacy EMBERON2 image: original filename was not stored")
	}
	return nil
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("inspect needs <input>")
	}

	info, err := emberon.Inspect(c.Args().First())
	if err != nil {
		return err
	}
	heading.Println("[Header Information]")
	fmt.Print(info)
	return nil
}
