package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/reelcomposer/internal/app"
	"github.com/ivlev/reelcomposer/internal/assets"
	"github.com/ivlev/reelcomposer/internal/config"
	"github.com/ivlev/reelcomposer/internal/logging"
	"github.com/ivlev/reelcomposer/internal/script"
	"github.com/ivlev/reelcomposer/internal/server"
	"github.com/ivlev/reelcomposer/internal/system"
	"github.com/ivlev/reelcomposer/internal/transport"
	pkgconfig "github.com/ivlev/reelcomposer/pkg/config"
)

// setup loads the configuration named by --config and the matching logger.
func setup(cmd *cli.Command) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg := config.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	system.InitResourceLimits(log)
	return cfg, log, closer, nil
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", fmt.Errorf("missing %s argument", what)
	}
	return arg, nil
}

// defaultOutput names an export after its script, the way output/ files
// have always been named.
func defaultOutput(scriptPath string) string {
	base := filepath.Base(scriptPath)
	name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, timestamp))
}

const pacingUsage = "offline: every frame at i/fps on a frame clock, never dropping frames (default); " +
	"realtime: frames sampled from the wall clock like live playback, so slow renders drop frames"

func exportAction(ctx context.Context, cmd *cli.Command) error {
	scriptPath, err := requireArg(cmd, "script")
	if err != nil {
		return err
	}
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	if p := cmd.String("pacing"); p != "" {
		cfg.Export.Pacing = p
	}
	if cmd.Bool("no-audio") {
		cfg.Export.IncludeAudio = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.String("out")
	if out == "" {
		out = defaultOutput(scriptPath)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fps := cfg.Export.FPS
	a, err := app.New(cfg, log, app.WithProgress(func(frame int, t float64) {
		if frame > 0 && frame%fps == 0 {
			fmt.Printf("[*] %d frames, %.1fs\n", frame, t)
		}
	}))
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.LoadScript(ctx, scriptPath); err != nil {
		return err
	}
	fmt.Printf("[*] Exporting %.2fs to %s\n", a.Editor.Store().TotalDuration(), out)

	report, err := a.Exporter.Export(ctx, out)
	if err != nil {
		return err
	}
	if cfg.Export.ShowStats {
		fmt.Printf("[*] %d frames in %s, cpu %.0f%%, mem %.0f%% (%d MB)\n",
			report.Frames, report.Elapsed.Round(time.Millisecond),
			report.Host.CPUPercent, report.Host.MemPercent, report.Host.MemUsedMB)
	}
	fmt.Printf("[+++] Done: %s (%.2fs)\n", report.Path, report.VideoDuration())
	return nil
}

func frameAction(ctx context.Context, cmd *cli.Command) error {
	scriptPath, err := requireArg(cmd, "script")
	if err != nil {
		return err
	}
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.LoadScript(ctx, scriptPath); err != nil {
		return err
	}
	if err := a.WaitImages(ctx); err != nil {
		return err
	}

	out := cmd.String("out")
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()
	if err := png.Encode(f, a.Editor.FrameAt(cmd.Float("at"))); err != nil {
		return fmt.Errorf("encode %s: %w", out, err)
	}
	fmt.Printf("[+++] Frame at %.2fs written to %s\n", cmd.Float("at"), out)
	return nil
}

func assetsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	dir := cmd.Args().First()
	if dir == "" {
		dir = cfg.Assets.Dir
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadAssets(ctx, dir); err != nil {
		return err
	}
	printRegistry(a.Registry)

	if out := cmd.String("storyboard"); out != "" {
		director := script.NewDirector()
		refs := make([]string, 0, len(a.Registry.Images()))
		for _, img := range a.Registry.Images() {
			refs = append(refs, img.Ref)
		}
		// Caption placement only needs the images that did load.
		if err := a.Images.Wait(ctx, refs...); err != nil && ctx.Err() != nil {
			return err
		}
		director.Frames = a.Images.Image
		s := director.Storyboard(a.Registry, cmd.Float("duration"))
		s.Aspect = cfg.Canvas.Aspect
		s.Assets = assetsRef(out, dir)
		if err := script.Write(s, out); err != nil {
			return err
		}
		fmt.Printf("[+++] Storyboard with %d clips written to %s\n", len(s.Clips), out)
	}

	if !cmd.Bool("watch") {
		return nil
	}
	fmt.Printf("[*] Watching %s\n", dir)
	err = assets.Watch(ctx, dir, assets.DefaultDebounce, logging.Component(log, "watch"), func(assets.Manifest) {
		if err := a.LoadAssets(ctx, dir); err != nil {
			log.Error().Err(err).Msg("reload failed")
			return
		}
		printRegistry(a.Registry)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printRegistry(reg *assets.Registry) {
	fmt.Printf("[*] %d images, %d texts, %d audio\n", len(reg.Images()), len(reg.Texts()), len(reg.Audios()))
	for i, t := range reg.Texts() {
		fmt.Printf("    text %d: %s\n", i, t.Headline)
	}
	for i, au := range reg.Audios() {
		fmt.Printf("    audio %d: %s\n", i, au.DisplayName)
	}
}

// assetsRef is dir as seen from the directory of the script at scriptPath.
func assetsRef(scriptPath, dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	absScript, err := filepath.Abs(filepath.Dir(scriptPath))
	if err != nil {
		return absDir
	}
	rel, err := filepath.Rel(absScript, absDir)
	if err != nil {
		return absDir
	}
	return rel
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if scriptPath := cmd.Args().First(); scriptPath != "" {
		if _, err := a.LoadScript(ctx, scriptPath); err != nil {
			return err
		}
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = cfg.Preview.Addr
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.Editor.RunEvents(ctx, nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.Serve(ctx, addr, server.NewRouter(a.Editor, a.Exporter, cfg.Preview.ExportDir, logging.Component(log, "http")), log)
	})
	return g.Wait()
}

func playAction(ctx context.Context, cmd *cli.Command) error {
	scriptPath, err := requireArg(cmd, "script")
	if err != nil {
		return err
	}
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	if s := cmd.String("step"); s != "" {
		mode, err := transport.ParseStepMode(s)
		if err != nil {
			return err
		}
		cfg.Playback.StepMode = string(mode)
	}

	a, err := app.New(cfg, log, app.WithDeviceAudio())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.LoadScript(ctx, scriptPath); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Editor.Transport().Subscribe(func(ev transport.Event) {
		if ev.State == transport.Stopped {
			cancel()
		}
	})
	if !a.Editor.Play() {
		return errors.New("nothing to play")
	}
	fmt.Printf("[*] Playing %.2fs\n", a.Editor.Store().TotalDuration())

	last := -1
	err = a.Editor.RunEvents(ctx, func(ev transport.Event) {
		if sec := int(ev.Time); sec != last {
			last = sec
			fmt.Printf("[*] %02d:%02d\n", sec/60, sec%60)
		}
	})
	if errors.Is(err, context.Canceled) {
		fmt.Println("[+++] Playback finished")
		return nil
	}
	return err
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "reelcomposer",
		Usage: "Compose short videos from images, text and audio on a timeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("REEL_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Render a script to a video file",
				ArgsUsage: "SCRIPT",
				Action:    exportAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output video (default output/<script>_<time>.mp4)"},
					&cli.StringFlag{Name: "pacing", Usage: pacingUsage},
					&cli.BoolFlag{Name: "no-audio", Usage: "Export without the audio track"},
				},
			},
			{
				Name:      "frame",
				Usage:     "Render a single frame of a script to PNG",
				ArgsUsage: "SCRIPT",
				Action:    frameAction,
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "at", Usage: "Time in seconds"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output PNG", Value: "frame.png"},
				},
			},
			{
				Name:      "assets",
				Usage:     "List an asset folder and optionally draft a storyboard script",
				ArgsUsage: "[DIR]",
				Action:    assetsAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Reload when the folder changes"},
					&cli.StringFlag{Name: "storyboard", Usage: "Write a storyboard script to this path"},
					&cli.FloatFlag{Name: "duration", Usage: "Target storyboard length in seconds (0 = per-image default)"},
				},
			},
			{
				Name:      "serve",
				Usage:     "Run the preview server",
				ArgsUsage: "[SCRIPT]",
				Action:    serveAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
				},
			},
			{
				Name:      "play",
				Usage:     "Play a script's audio in real time",
				ArgsUsage: "SCRIPT",
				Action:    playAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "step", Usage: "delta or fixed"},
				},
			},
		},
	}
}

func main() {
	cmd := newCommand()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[-] %v\n", err)
		stop()
		os.Exit(1)
	}
}
