// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"audioviz/internal/analysis"
	"audioviz/internal/audio"
	"audioviz/internal/build"
	"audioviz/internal/config"
	"audioviz/internal/engine"
	"audioviz/internal/log"
	"audioviz/internal/scheduler"
	"audioviz/internal/transport"
	"audioviz/internal/transport/udp"
	"audioviz/internal/tui"

	"github.com/spf13/cobra"
)

// options holds the command line flags. Flags left unset keep the value
// from the config file.
type options struct {
	configPath  string
	verbose     bool
	fftSize     int
	smoothing   float64
	window      string
	device      int
	refreshRate float64
	record      bool
	output      string
	websocket   bool
	udp         bool
	headless    bool
	interactive bool
}

// Execute runs the audioviz command line with args.
func Execute(args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// NewRootCmd builds the audioviz command tree.
func NewRootCmd() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to a YAML config file (default: ./config.yaml or ./audioviz.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show debug output")

	playCmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play an audio file and visualize its spectrum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, audio.File(args[0]), false)
		},
	}
	addRenderFlags(playCmd, opts)
	playCmd.Flags().IntVarP(&opts.device, "device", "d", -1,
		"Output device ID. Use 'list' to see available devices.")
	playCmd.Flags().BoolVar(&opts.headless, "headless", false,
		"Drive playback from a timer without audio output or terminal UI")
	rootCmd.AddCommand(playCmd)

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Visualize live input from a capture device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			res := audio.Live("input", int(cfg.Audio.SampleRate), cfg.Audio.Channels)
			return run(cmd.Context(), cfg, res, true)
		},
	}
	addRenderFlags(listenCmd, opts)
	listenCmd.Flags().IntVarP(&opts.device, "device", "d", -1,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.AddCommand(listenCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetLevel(log.LevelDebug)
			}
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !opts.interactive {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			d, ok, err := tui.PickDevice(audio.HostDevices)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", d.ID)
			}
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false,
		"Browse devices and print the ID of the selected one")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.GetBuildFlags())
		},
	})

	return rootCmd
}

func addRenderFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.IntVar(&opts.fftSize, "fft-size", analysis.DefaultFFTSize,
		"FFT size, a power of two between 32 and 32768")
	f.Float64Var(&opts.smoothing, "smoothing", analysis.DefaultSmoothingFactor,
		"Temporal smoothing between 0 and 1")
	f.StringVar(&opts.window, "window", analysis.Blackman.String(),
		"Window function (Blackman, Hann, Hamming, Nuttall, Lanczos, Rectangular, ...)")
	f.Float64Var(&opts.refreshRate, "refresh-rate", 60,
		"Display frames per second")
	f.BoolVarP(&opts.record, "record", "r", false,
		"Record the analyzed signal to a WAV file")
	f.StringVarP(&opts.output, "output", "o", "recording.wav",
		"Recording output file")
	f.BoolVar(&opts.websocket, "ws", false,
		"Serve frames to websocket clients")
	f.BoolVar(&opts.udp, "udp", false,
		"Send frames as UDP packets")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("fft-size") {
		cfg.Analysis.FFTSize = opts.fftSize
	}
	if flags.Changed("smoothing") {
		cfg.Analysis.SmoothingFactor = opts.smoothing
	}
	if flags.Changed("window") {
		cfg.Analysis.Window = opts.window
	}
	if flags.Changed("refresh-rate") {
		cfg.Display.RefreshRate = opts.refreshRate
	}
	if flags.Changed("device") {
		if cmd.Name() == "listen" {
			cfg.Audio.InputDevice = opts.device
		} else {
			cfg.Audio.OutputDevice = opts.device
		}
	}
	if flags.Changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if flags.Changed("output") {
		cfg.Recording.OutputFile = opts.output
	}
	if flags.Changed("ws") {
		cfg.Transport.WebSocketEnabled = opts.websocket
	}
	if flags.Changed("udp") {
		cfg.Transport.UDPEnabled = opts.udp
	}
	if flags.Lookup("headless") != nil && flags.Changed("headless") {
		cfg.Audio.Headless = opts.headless
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}
	return cfg, nil
}

// run wires a source, analyzer, scheduler and the configured consumers
// together and blocks until playback ends, the user quits or a signal
// arrives.
func run(ctx context.Context, cfg *config.Config, res audio.Resource, live bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	headless := cfg.Audio.Headless && !live
	if !headless {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	src := audio.NewSource()
	if err := src.Load(res); err != nil {
		return err
	}
	defer src.Close()

	analysisOpts, err := cfg.AnalysisOptions()
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewAnalyzer(analysisOpts)
	if err != nil {
		return err
	}
	if err := analyzer.Attach(src, cfg.Analysis.FFTSize); err != nil {
		return err
	}
	defer analyzer.Detach()

	driver, err := newDriver(cfg, src, live)
	if err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		rec, err := audio.NewRecorder(cfg.Recording.BitDepth)
		if err != nil {
			return err
		}
		if err := rec.Start(src.Tap(), cfg.Recording.OutputFile); err != nil {
			return err
		}
		defer func() {
			if err := rec.Stop(); err != nil {
				log.Errorf("Error stopping recording: %v", err)
				return
			}
			fmt.Printf("Recording saved to: %s\n", cfg.Recording.OutputFile)
		}()
	}

	frames := scheduler.NewTickerDriver(cfg.Display.RefreshRate)
	defer frames.Close()
	sched := scheduler.New(frames)
	sched.OnError(func(err error) { log.Warnf("Render: %v", err) })

	vis, err := engine.New(src, analyzer.NewReader(), sched, engine.Options{
		Bands:     analysis.DefaultBands(),
		StopOnEnd: !live,
	})
	if err != nil {
		return err
	}

	transports, err := openTransports(cfg, headless)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range transports {
			if err := t.Close(); err != nil {
				log.Warnf("Transport: close failed: %v", err)
			}
		}
	}()
	for _, t := range transports {
		vis.AddConsumer(engine.Publish(t))
	}

	var feed *tui.Feed
	if !headless {
		feed = tui.NewFeed()
		vis.AddConsumer(feed)
	}

	if err := src.Play(); err != nil {
		return err
	}
	if err := driver.Start(); err != nil {
		return err
	}
	defer func() {
		if err := driver.Stop(); err != nil {
			log.Warnf("Audio: stop failed: %v", err)
		}
	}()
	if err := vis.Start(); err != nil {
		return err
	}
	defer vis.Shutdown()
	done := vis.Done()

	if headless {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	}
	return runUI(ctx, cfg, src, feed, done, title(src, res))
}

func newDriver(cfg *config.Config, src *audio.Source, live bool) (audio.Driver, error) {
	stream := audio.StreamConfig{
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}
	switch {
	case live:
		stream.DeviceID = cfg.Audio.InputDevice
		return audio.NewCapture(src, stream, cfg.Audio.SampleRate, cfg.Audio.Channels)
	case cfg.Audio.Headless:
		return audio.NewClock(src, cfg.Audio.FramesPerBuffer), nil
	default:
		stream.DeviceID = cfg.Audio.OutputDevice
		return audio.NewOutput(src, stream)
	}
}

func openTransports(cfg *config.Config, headless bool) ([]transport.Transport, error) {
	var out []transport.Transport
	fail := func(err error) ([]transport.Transport, error) {
		for _, t := range out {
			t.Close()
		}
		return nil, err
	}

	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		if err != nil {
			return fail(err)
		}
		log.Infof("Transport: serving frames on ws://%s%s", ws.Addr(), transport.WebSocketPath)
		out = append(out, ws)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return fail(err)
		}
		pub, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return fail(err)
		}
		log.Infof("Transport: sending frames to udp://%s", sender.Target())
		out = append(out, pub)
	}
	if headless {
		out = append(out, transport.NewLoggingTransport())
	}
	return out, nil
}

// runUI runs the terminal visualizer. Logs go to a file while it owns the
// screen so they do not tear the display.
func runUI(ctx context.Context, cfg *config.Config, player tui.Player, feed *tui.Feed, done <-chan struct{}, name string) error {
	restore := redirectLogs()
	defer restore()

	model := tui.NewVisualizerModel(player, feed, tui.Options{
		Title:  name,
		Gap:    cfg.Display.BarGap,
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
	})
	p := tui.Program(model)
	defer feed.Bind(nil)

	go func() {
		select {
		case <-done:
			p.Send(tui.DoneMsg{})
		case <-ctx.Done():
			p.Quit()
		}
	}()

	_, err := p.Run()
	if dropped := feed.Dropped(); dropped > 0 {
		log.Debugf("TUI: %d frames dropped while the terminal was busy", dropped)
	}
	return err
}

func redirectLogs() (restore func()) {
	if !log.Enabled(log.LevelDebug) {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }
	}
	f, err := os.OpenFile("audioviz.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}

func title(src *audio.Source, res audio.Resource) string {
	meta := src.Metadata()
	switch {
	case meta.Title != "" && meta.Artist != "":
		return meta.Artist + " - " + meta.Title
	case meta.Title != "" && meta.Title != res.Name():
		return meta.Title
	default:
		return filepath.Base(res.Name())
	}
}
