// Command eightball finds the felt of a pool table in a still image, a video
// source or a live camera, and can serve the results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/app"
	"github.com/ayusman/eightball/internal/capture"
	"github.com/ayusman/eightball/internal/config"
	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/logging"
	"github.com/ayusman/eightball/internal/overlay"
	"github.com/ayusman/eightball/internal/profile"
	"github.com/ayusman/eightball/internal/server"
	"github.com/ayusman/eightball/internal/store"
	"github.com/ayusman/eightball/internal/tray"
)

type options struct {
	image   string
	out     string
	display bool
	camera  int
	video   string
	serve   bool
	tray    bool
	profile string
	db      string
	addr    string
	static  string
	envFile string
	logLvl  string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := envFileFromArgs(os.Args[1:])
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	var opts options
	flag.StringVar(&opts.envFile, "env", ".env", "path to an optional .env file")
	flag.StringVar(&opts.image, "image", "", "path to an image file to process")
	flag.StringVar(&opts.out, "out", "", "write the annotated image to this path")
	flag.BoolVar(&opts.display, "display", false, "show results in a window")
	flag.IntVar(&opts.camera, "camera", cfg.CameraID, "camera device ID")
	flag.StringVar(&opts.video, "video", cfg.VideoPath, "read frames from a video file instead of a camera")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP server")
	flag.BoolVar(&opts.tray, "tray", false, "show the system tray menu (with -serve)")
	flag.StringVar(&opts.profile, "profile", cfg.Profile, "felt profile name")
	flag.StringVar(&opts.db, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&opts.addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&opts.static, "static", cfg.StaticDir, "directory of static web files")
	flag.StringVar(&opts.logLvl, "log-level", cfg.LogLevel, "log level")
	flag.Parse()

	cfg.CameraID = opts.camera
	cfg.VideoPath = opts.video
	cfg.Profile = opts.profile
	cfg.DBPath = opts.db
	cfg.Addr = opts.addr
	cfg.StaticDir = opts.static
	cfg.LogLevel = opts.logLvl

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()
	logger.WithField("db", st.Path()).Debug("Store opened")

	if n, err := profile.SeedBuiltins(st.Profiles()); err != nil {
		return err
	} else if n > 0 {
		logger.WithField("count", n).Info("Seeded built-in profiles")
	}

	switch {
	case opts.image != "":
		return runImage(cfg, opts, st)
	case opts.serve:
		return runServe(cfg, opts, st, logger)
	default:
		return runLive(cfg, opts, st, logger)
	}
}

// envFileFromArgs finds -env before flags are parsed so that .env values can
// seed the flag defaults.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "env" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func resolveProfile(st *store.Store, name string) (profile.Profile, error) {
	if name == "" {
		active, err := profile.Active(st)
		if err != nil {
			return profile.Profile{}, err
		}
		name = active
	}
	return profile.Resolve(st, name)
}

// report prints the console result for one frame.
func report(s overlay.Summary) {
	if s.Found {
		fmt.Println("Table detected!")
		fmt.Printf("Corners detected: %d\n", len(s.Corners))
	} else {
		fmt.Println("No table detected.")
	}
}

// runImage processes a single still image.
func runImage(cfg config.Config, opts options, st *store.Store) error {
	p, err := resolveProfile(st, cfg.Profile)
	if err != nil {
		return err
	}

	frame, err := imageio.Load(opts.image, imageio.Options{MaxDimension: cfg.MaxDimension})
	if err != nil {
		return fmt.Errorf("could not read image %s: %w", opts.image, err)
	}
	defer frame.Close()

	d, err := detector.NewTableDetector(p.Config)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Detect(&frame)
	if err != nil {
		return err
	}
	defer res.Close()

	summary := overlay.Summarize(res)
	report(summary)

	annotated := frame.Clone()
	defer annotated.Close()
	overlay.Draw(&annotated, summary)

	if opts.out != "" {
		if err := imageio.Save(opts.out, annotated); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", opts.out)
	}

	if opts.display {
		window := gocv.NewWindow("Eightball")
		defer window.Close()
		mask := gocv.NewWindow("Table Mask")
		defer mask.Close()

		window.IMShow(annotated)
		mask.IMShow(res.Mask)
		window.WaitKey(0)
	}

	return nil
}

// runLive processes frames from a camera or video file until the source ends
// or the user quits.
func runLive(cfg config.Config, opts options, st *store.Store, logger *logrus.Logger) error {
	a := app.New(app.Config{
		Store:        st,
		CameraID:     cfg.CameraID,
		VideoPath:    cfg.VideoPath,
		Profile:      cfg.Profile,
		MotionThresh: cfg.MotionThreshold,
		Logger:       logger,
	})
	defer a.Close()

	if opts.display {
		return displayLoop(a)
	}

	a.Subscribe(func(s app.Snapshot) { report(s.Detection) })
	a.SetEnabled(true)
	if err := a.Start(); err != nil {
		return fmt.Errorf("could not open video capture: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-a.Done():
	}
	a.Stop()
	return nil
}

// displayLoop reads frames on the calling goroutine so the window stays on
// the main thread. Pressing q quits.
func displayLoop(a *app.App) error {
	cam := a.Camera()
	if err := cam.Open(); err != nil {
		return fmt.Errorf("could not open video capture: %w", err)
	}
	defer cam.Close()

	window := gocv.NewWindow("Eightball")
	defer window.Close()
	maskWindow := gocv.NewWindow("Table Mask")
	defer maskWindow.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	for {
		frame, err := cam.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			fmt.Println("Failed to grab frame")
			return err
		}

		snap, err := a.InspectFrame(frame, &mask)
		if err != nil {
			frame.Close()
			return err
		}
		report(snap.Detection)

		overlay.Draw(frame, snap.Detection)
		window.IMShow(*frame)
		maskWindow.IMShow(mask)
		frame.Close()

		if window.WaitKey(1)&0xFF == 'q' {
			return nil
		}
	}
}

// runServe runs the HTTP server, the live pipeline and optionally the tray.
func runServe(cfg config.Config, opts options, st *store.Store, logger *logrus.Logger) error {
	a := app.New(app.Config{
		Store:        st,
		CameraID:     cfg.CameraID,
		VideoPath:    cfg.VideoPath,
		Profile:      cfg.Profile,
		MotionThresh: cfg.MotionThreshold,
		Logger:       logger,
	})
	defer a.Close()

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.WithField("dir", staticDir).Info("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:    staticDir,
		Store:        st,
		App:          a,
		Logger:       logger,
		ImageOptions: imageio.Options{MaxDimension: cfg.MaxDimension},
		DetectRate:   cfg.DetectRate,
		DetectBurst:  cfg.DetectBurst,
	})

	a.SetEnabled(true)
	if err := a.Start(); err != nil {
		logger.WithError(err).Warn("Live capture unavailable; serving API only")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Stop()
		return srv.Shutdown(ctx)
	}

	if opts.tray {
		return runTray(a, st, cfg.Addr, logger, errCh, shutdown)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("Shutting down")
		return shutdown()
	}
}

// trayRefresh is how often the tray picks up changes made through the API.
const trayRefresh = 2 * time.Second

func runTray(a *app.App, st *store.Store, addr string, logger *logrus.Logger, errCh <-chan error, shutdown func() error) error {
	t := tray.New()
	syncTray(t, a, st, logger)

	t.OnToggle(a.SetEnabled)
	t.OnProfile(func(name string) {
		if err := a.UseProfile(name); err != nil {
			logger.WithError(err).WithField("profile", name).Warn("Failed to switch profile")
		}
	})
	t.OnSettings(func() {
		if err := openBrowser(settingsURL(addr)); err != nil {
			logger.WithError(err).Warn("Failed to open browser")
		}
	})
	t.OnQuit(func() {
		if err := shutdown(); err != nil {
			logger.WithError(err).Warn("Shutdown error")
		}
	})

	unsubscribe := a.Subscribe(func(s app.Snapshot) {
		t.SetLastResult(&s.Detection)
	})
	defer unsubscribe()

	go func() {
		if err := <-errCh; err != nil {
			logger.WithError(err).Error("Server failed")
		}
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(trayRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				syncTray(t, a, st, logger)
			}
		}
	}()

	t.Run()
	return nil
}

// syncTray mirrors the detection toggle and the profile list into the tray,
// so changes made over HTTP show up in the menu.
func syncTray(t *tray.Tray, a *app.App, st *store.Store, logger *logrus.Logger) {
	if enabled := a.IsEnabled(); t.IsEnabled() != enabled {
		t.SetEnabled(enabled)
	}

	records, err := st.Profiles().List()
	if err != nil {
		logger.WithError(err).Warn("Failed to list profiles for tray")
		return
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}

	if active := a.ProfileName(); t.ActiveProfile() != active || !slices.Equal(t.Profiles(), names) {
		t.SetProfiles(names, active)
	}
}

func settingsURL(addr string) string {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.eightball/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".eightball", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
