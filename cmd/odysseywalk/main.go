package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"odysseywalk/internal/api"
	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/cache"
	"odysseywalk/pkg/config"
	"odysseywalk/pkg/db"
	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/geofence"
	"odysseywalk/pkg/logging"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/narrator"
	"odysseywalk/pkg/probe"
	"odysseywalk/pkg/request"
	"odysseywalk/pkg/session"
	"odysseywalk/pkg/store"
	"odysseywalk/pkg/tour"
	"odysseywalk/pkg/tracker"
	"odysseywalk/pkg/tts"
	"odysseywalk/pkg/version"
)

const defaultConfigPath = "configs/odysseywalk.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	tourPath   = flag.String("tour", "", "Tour file, overrides tour.path (\"demo\" loads the built-in tour)")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	demo       = flag.Bool("demo", false, "Use the simulated walker and walk the whole route")
)

// options are the command line choices passed to run.
type options struct {
	ConfigPath string
	TourPath   string
	Demo       bool
}

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options{ConfigPath: *configPath, TourPath: *tourPath, Demo: *demo}); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()
	tts.SetLogPath(appCfg.Log.TTS.Path)

	slog.Info("Odysseywalk Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	bundle, err := loadTour(appCfg, opts.TourPath)
	if err != nil {
		return err
	}
	slog.Info("Tour loaded", "id", bundle.Tour.ID, "name", bundle.Tour.Name, "stops", len(bundle.POIs),
		"route_m", fmt.Sprintf("%.0f", geo.RouteLength(bundle.Tour.RoutePoints)))

	tr := tracker.New()
	reqClient := request.New(tr, request.Config{
		Timeout:       appCfg.Request.Timeout.Std(),
		MaxAttempts:   appCfg.Request.Retries,
		BaseDelay:     appCfg.Request.Backoff.BaseDelay.Std(),
		RatePerSecond: appCfg.Request.RatePerSecond,
		Burst:         appCfg.Request.Burst,
	})

	prefs := config.NewProvider(appCfg, st)
	synth, err := initTTS(appCfg, reqClient, tr)
	if err != nil {
		slog.Warn("No speech synthesis available, narration will be shown as text", "error", err)
	}
	ctrl := initAudio(ctx, appCfg, prefs, synth, st)

	loc := initLocation(appCfg)
	llmSvc, gc, err := initLLM(appCfg, reqClient, tr)
	if err != nil {
		return err
	}

	if err := probe.AnalyzeResults(probe.Run(ctx, startupProbes(dbConn, bundle, synth, gc))); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	sessionMgr := session.NewManager(st, st)
	if appCfg.Session.Restore {
		session.TryRestore(ctx, st, sessionMgr, bundle.Tour.ID)
	}

	mode := prefs.Mode(ctx)
	if opts.Demo {
		mode = model.ModeDemo
	}
	narratorSvc, err := narrator.New(narrator.Deps{
		Tour:        bundle,
		Engine:      geofence.NewEngine(bundle.POIs, geofenceConfig(appCfg), geo.Distance),
		Sim:         loc.Sim,
		Real:        loc.Real,
		Audio:       ctrl,
		Session:     sessionMgr,
		Answerer:    llmSvc,
		Transcriber: llmSvc,
		Tracker:     tr,
	}, narrator.Config{
		PrewarmAhead: appCfg.Audio.PrewarmAhead,
		DemoDelay:    appCfg.Location.DemoDelay.Std(),
		Mode:         mode,
		VoiceStyle:   prefs.VoiceStyle(ctx, bundle.Tour.DefaultVoiceStyle),
		Lang:         prefs.Lang(ctx, bundle.Tour.DefaultLang),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize narrator: %w", err)
	}

	if err := narratorSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start narrator: %w", err)
	}
	defer narratorSvc.Stop()
	unsubPrefs := persistPreferences(ctx, narratorSvc, prefs)
	defer unsubPrefs()

	sched := newScheduler(appCfg, st, dbConn, sessionMgr)
	unsubSched := feedScheduler(narratorSvc, sched)
	defer unsubSched()

	if opts.Demo {
		if err := narratorSvc.RunDemo(ctx); err != nil {
			slog.Warn("Demo walk not started", "error", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(tracker.NewCollector(tr))
	reg.MustRegister(collectors.NewGoCollector())

	srv := api.NewServer(appCfg.Server.Address, api.Handlers{
		Tour:       api.NewTourHandler(narratorSvc, bundle),
		Audio:      api.NewAudioHandler(narratorSvc),
		Ask:        api.NewAskHandler(narratorSvc),
		Stats:      api.NewStatsHandler(tr, sessionMgr, map[string][]string{"tts": appCfg.TTS.Engines, "llm": llmSvc.Names()}),
		Stream:     api.NewStreamHandler(narratorSvc),
		Visibility: api.NewVisibilityHandler(loc.Visibility),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, cancel)
	srv.Handler = loggingMiddleware(srv.Handler)

	return runServerLifecycle(ctx, srv, sched.Start)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// loadTour reads the tour file. A missing file falls back to the built-in
// demo tour; a broken one is an error.
func loadTour(appCfg *config.Config, override string) (*tour.Bundle, error) {
	path := appCfg.Tour.Path
	if override != "" {
		path = override
	}
	if path == "demo" {
		return tour.Demo()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Tour file not found, using the demo tour", "path", path)
		return tour.Demo()
	}
	b, err := tour.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour %s: %w", path, err)
	}
	return b, nil
}

func geofenceConfig(appCfg *config.Config) geofence.Config {
	g := appCfg.Geofence
	return geofence.Config{
		NextK:                g.NextK,
		AccuracyClampMax:     g.AccuracyClampMax.Meters(),
		ExitHysteresisM:      g.ExitHysteresis.Meters(),
		ConsecutiveInside:    g.ConsecutiveInside,
		Cooldown:             g.Cooldown.Std(),
		DefaultRadiusM:       g.DefaultRadius.Meters(),
		ResetOnVisitedChange: g.ResetOnVisitedChange,
	}
}

// persistPreferences stores voice and mode changes so the next tour starts
// with them.
func persistPreferences(ctx context.Context, svc *narrator.Service, prefs config.Provider) func() {
	return svc.Subscribe(func(ev narrator.Event) {
		switch ev.Type {
		case narrator.EventVoice:
			go func() {
				if err := prefs.SetVoice(ctx, ev.VoiceStyle, ev.Lang); err != nil {
					slog.Warn("Failed to persist voice", "error", err)
				}
			}()
		case narrator.EventMode:
			go func() {
				if err := prefs.SetMode(ctx, ev.Mode); err != nil {
					slog.Warn("Failed to persist mode", "error", err)
				}
			}()
		}
	})
}

// runServerLifecycle serves until ctx is cancelled. The background loops
// share the server's lifetime and are waited for before returning.
func runServerLifecycle(ctx context.Context, srv *http.Server, background ...func(context.Context)) error {
	slog.Info("Starting server", "addr", srv.Addr)

	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range background {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// realClock is shared by the components that schedule timers.
var realClock = clockwork.NewRealClock()

func initAudio(ctx context.Context, appCfg *config.Config, prefs config.Provider, synth tts.Synthesizer, st store.AudioStore) *audio.Controller {
	var player audio.Player
	if appCfg.Audio.Output == "silent" {
		player = audio.NewSilentPlayer(realClock)
	} else {
		player = audio.NewManager(audio.ManagerConfig{
			SpeechFilter: appCfg.Audio.SpeechFilter,
			LowCutoff:    appCfg.Audio.LowCutoff,
			HighCutoff:   appCfg.Audio.HighCutoff,
		})
	}

	var copts []audio.Option
	if p := appCfg.Audio.Placeholder; p != "" {
		copts = append(copts, audio.WithPlaceholder(placeholderClip(p)))
	}

	ctrl := audio.NewController(player, synth, cache.NewSQLiteCache(st), audio.Config{
		DuckVolume:         prefs.DuckVolume(ctx),
		FadeDuration:       appCfg.Audio.FadeDuration.Std(),
		FrameInterval:      appCfg.Audio.FrameInterval.Std(),
		Format:             appCfg.Audio.Format,
		PrewarmConcurrency: appCfg.Audio.PrewarmConcurrency,
	}, copts...)
	ctrl.SetTransitionLogger(func(from, to model.AudioState) {
		logging.TraceDefault("Audio: state transition", "from", from, "to", to)
	})
	return ctrl
}

// placeholderClip loads the generic clip lazily so a missing file only
// disables the placeholder.
func placeholderClip(path string) func(ctx context.Context) (audio.Clip, error) {
	return func(ctx context.Context) (audio.Clip, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("failed to read placeholder clip: %w", err)
		}
		return audio.Clip{Data: data}, nil
	}
}
