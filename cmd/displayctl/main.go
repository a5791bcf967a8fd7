// displayctl pushes scenes and sprites to a matrx display and runs storage
// maintenance against it over the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/koios/matrx-display/internal/config"
	"github.com/koios/matrx-display/pkg/models"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type command struct {
	usage string
	run   func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"push-config":   {"push-config [--clear] FILE", pushConfig},
	"check":         {"check FILE", checkConfig},
	"convert":       {"convert FILE OUTPUT", convertConfig},
	"upload-sprite": {"upload-sprite --frame-time MS KEY FRAME...", uploadSprite},
	"bulk-upload":   {"bulk-upload [--format] [--filter NAME]... SPRITES.yaml", bulkUpload},
	"render":        {"render [--key KEY] [--param NAME=VALUE]... APP", renderApp},
	"flush-cache":   {"flush-cache APP", flushCache},
	"exists":        {"exists KEY", exists},
	"delete":        {"delete KEY", deleteKey},
	"format":        {"format", formatStore},
	"state":         {"state on|off", setState},
	"brightness":    {"brightness 0-255", setBrightness},
	"status":        {"status", showStatus},
}

var commandOrder = []string{
	"push-config", "check", "convert", "upload-sprite", "bulk-upload", "render", "flush-cache",
	"exists", "delete", "format", "state", "brightness", "status",
}

// cli carries what every command needs
type cli struct {
	client *Client
	out    io.Writer
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var host, logLevel string
	var timeout time.Duration
	var retries int

	flags := pflag.NewFlagSet("displayctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.StringVar(&host, "host", envOr("MATRX_HOST", "localhost:8080"), "display address (env MATRX_HOST)")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	flags.IntVar(&retries, "retries", 2, "retries on transport errors")
	flags.StringVar(&logLevel, "log-level", "info", "log level")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		printUsage(stderr, flags)
		return pflag.ErrHelp
	}

	name := flags.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	logger, err := config.NewLogger(logLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	c := &cli{
		client: NewClient(host, timeout, retries),
		out:    stdout,
		logger: logger.With(zap.String("host", host)),
	}
	if err := cmd.run(ctx, c, flags.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: displayctl %s", cmd.usage)
		}
		return err
	}
	return nil
}

var errUsage = errors.New("bad usage")

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: displayctl [flags] COMMAND [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	flags.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// subcommand parses the flags of one command and checks its positional count
func subcommand(name string, args []string, nargs int, define func(*pflag.FlagSet)) ([]string, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	if define != nil {
		define(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if nargs >= 0 && flags.NArg() != nargs {
		return nil, errUsage
	}
	return flags.Args(), nil
}

func pushConfig(ctx context.Context, c *cli, args []string) error {
	var clearScene bool
	rest, err := subcommand("push-config", args, -1, func(f *pflag.FlagSet) {
		f.BoolVar(&clearScene, "clear", false, "clear the display instead of pushing a file")
	})
	if err != nil {
		return err
	}

	var cfg *models.Configuration
	switch {
	case clearScene && len(rest) == 0:
	case !clearScene && len(rest) == 1:
		if cfg, err = loadConfiguration(rest[0]); err != nil {
			return err
		}
		if _, err := checkConfiguration(cfg); err != nil {
			return err
		}
	default:
		return errUsage
	}

	text, err := c.client.PushConfig(ctx, cfg)
	if err != nil {
		return err
	}
	c.logger.Info("Configuration pushed", zap.Bool("clear", cfg == nil), zap.String("response", text))
	return nil
}

func checkConfig(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("check", args, 1, nil)
	if err != nil {
		return err
	}
	cfg, err := loadConfiguration(rest[0])
	if err != nil {
		return err
	}
	scene, err := checkConfiguration(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d elements, %d styles, sprites %v\n",
		rest[0], len(scene.Screen.Elements), len(scene.Styles), scene.SpriteNames())
	return nil
}

func convertConfig(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("convert", args, 2, nil)
	if err != nil {
		return err
	}
	cfg, err := loadConfiguration(rest[0])
	if err != nil {
		return err
	}
	data, err := models.EncodeConfiguration(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.WriteFile(rest[1], data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rest[1], err)
	}
	c.logger.Info("Configuration converted", zap.String("output", rest[1]), zap.Int("bytes", len(data)))
	return nil
}

func uploadSprite(ctx context.Context, c *cli, args []string) error {
	var frameTime uint16
	rest, err := subcommand("upload-sprite", args, -1, func(f *pflag.FlagSet) {
		f.Uint16Var(&frameTime, "frame-time", 0, "milliseconds per frame, 0 for a still image")
	})
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return errUsage
	}

	res, err := loadFrames(rest[1:], frameTime)
	if err != nil {
		return err
	}
	if _, err := c.client.UploadSprite(ctx, rest[0], res); err != nil {
		return err
	}
	c.logger.Info("Sprite uploaded", zap.String("key", rest[0]), zap.Int("frames", len(res.Frames)))
	return nil
}

func bulkUpload(ctx context.Context, c *cli, args []string) error {
	var format bool
	var filter []string
	rest, err := subcommand("bulk-upload", args, 1, func(f *pflag.FlagSet) {
		f.BoolVar(&format, "format", false, "format the store before uploading")
		f.StringSliceVarP(&filter, "filter", "f", nil, "only upload the named sprites")
	})
	if err != nil {
		return err
	}

	sheet, err := models.LoadSpriteSheet(rest[0])
	if err != nil {
		return err
	}
	sheet = sheet.Filter(filter)
	baseDir := filepath.Dir(rest[0])

	if format {
		c.logger.Info("Formatting store, this may take a while")
		if _, err := c.client.Format(ctx); err != nil {
			return fmt.Errorf("failed to format store: %w", err)
		}
	}

	names := sheet.Names()
	c.logger.Info("Uploading sprites", zap.Int("count", len(names)))

	var failed int
	for i, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := sheet[name].Resource(baseDir)
		if err == nil {
			_, err = c.client.UploadSprite(ctx, name, res)
		}
		if err != nil {
			failed++
			c.logger.Error("Sprite upload failed", zap.String("key", name), zap.Error(err))
			continue
		}
		c.logger.Info("Sprite uploaded",
			zap.String("key", name),
			zap.Int("frames", len(res.Frames)),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(names))))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sprites failed to upload", failed, len(names))
	}
	return nil
}

func renderApp(ctx context.Context, c *cli, args []string) error {
	var key string
	var params map[string]string
	rest, err := subcommand("render", args, 1, func(f *pflag.FlagSet) {
		f.StringVar(&key, "key", "", "store key, defaults to the applet's sprite")
		f.StringToStringVar(&params, "param", nil, "applet parameter NAME=VALUE")
	})
	if err != nil {
		return err
	}

	result, err := c.client.Render(ctx, rest[0], key, params)
	if err != nil {
		return err
	}
	c.logger.Info("Applet rendered",
		zap.String("app", result.AppID),
		zap.String("key", result.Key),
		zap.Int("frames", result.Frames),
		zap.Int("bytes", result.Bytes))
	return nil
}

func flushCache(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("flush-cache", args, 1, nil)
	if err != nil {
		return err
	}
	text, err := c.client.FlushAppCache(ctx, rest[0])
	if err != nil {
		return err
	}
	c.logger.Info("Applet cache flushed", zap.String("app", rest[0]), zap.String("response", text))
	return nil
}

func exists(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("exists", args, 1, nil)
	if err != nil {
		return err
	}
	ok, err := c.client.Exists(ctx, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %t\n", rest[0], ok)
	return nil
}

func deleteKey(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("delete", args, 1, nil)
	if err != nil {
		return err
	}
	if _, err := c.client.Delete(ctx, rest[0]); err != nil {
		return err
	}
	c.logger.Info("Key deleted", zap.String("key", rest[0]))
	return nil
}

func formatStore(ctx context.Context, c *cli, args []string) error {
	if _, err := subcommand("format", args, 0, nil); err != nil {
		return err
	}
	text, err := c.client.Format(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("Store formatted", zap.String("response", text))
	return nil
}

func setState(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("state", args, 1, nil)
	if err != nil {
		return err
	}

	var on bool
	switch rest[0] {
	case "on":
		on = true
	case "off":
	default:
		return errUsage
	}
	if _, err := c.client.SetState(ctx, on); err != nil {
		return err
	}
	c.logger.Info("Panel state set", zap.Bool("on", on))
	return nil
}

func setBrightness(ctx context.Context, c *cli, args []string) error {
	rest, err := subcommand("brightness", args, 1, nil)
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(rest[0], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid brightness %q: %w", rest[0], err)
	}
	if _, err := c.client.SetBrightness(ctx, uint8(value)); err != nil {
		return err
	}
	c.logger.Info("Brightness set", zap.Uint64("brightness", value))
	return nil
}

func showStatus(ctx context.Context, c *cli, args []string) error {
	if _, err := subcommand("status", args, 0, nil); err != nil {
		return err
	}
	text, err := c.client.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, text)
	return nil
}
