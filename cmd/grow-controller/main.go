// Command grow-controller runs the hydroponic grow controller: it samples the
// probes, doses to keep each channel on target, cycles irrigation and reports
// to the cloud over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/config"
	"github.com/sweeney/grow-controller/internal/control"
	"github.com/sweeney/grow-controller/internal/grow"
	"github.com/sweeney/grow-controller/internal/health"
	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/store"
	"github.com/sweeney/grow-controller/internal/task"
	"github.com/sweeney/grow-controller/internal/web"
)

const defaultConfigPath = "/etc/grow-controller/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to the YAML config file")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	dev := flag.Bool("dev", false, "Run with simulated probes and pumps")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash of a password for admin_password_hash and exit")

	flag.Parse()

	if *hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *printConfig {
		out, err := config.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg, *dev); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file. A missing file at the default path
// falls back to the built-in defaults.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath:
			log.Printf("config: %s not found, using defaults", path)
		default:
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg config.Config, dev bool) error {
	st, err := store.OpenBolt(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	deviceID, err := resolveDeviceID(cfg.DeviceID, st)
	if err != nil {
		return err
	}

	var hist *history.DB
	if cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	hw, err := openHardware(cfg, dev)
	if err != nil {
		return err
	}
	defer hw.Close()

	reg, err := buildRegistry(cfg, hw)
	if err != nil {
		return err
	}
	sched, err := cfg.DaySchedule()
	if err != nil {
		return err
	}

	var clk clock.Source = clock.System{}
	met := metrics.New()
	tracker := status.NewTracker(clk.Now(), status.Config{
		DeviceID:        deviceID,
		Broker:          cfg.Broker,
		HTTPAddr:        cfg.HTTPAddr,
		SamplePeriodMs:  cfg.SamplePeriod.Milliseconds(),
		ControlPeriodMs: cfg.ControlPeriod.Milliseconds(),
		PublishPeriodMs: cfg.PublishPeriod.Milliseconds(),
		DayStart:        cfg.DayStart,
		NightStart:      cfg.NightStart,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	client := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.Broker,
		ClientID:   "grow-controller-" + deviceID,
		Username:   cfg.MQTTUser,
		Password:   cfg.MQTTPassword,
		Device:     deviceID,
		BufferSize: cfg.OfflineBuffer,
	})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group := task.NewGroup(ctx)

	mgr := grow.New(grow.Config{
		Store:    st,
		Tasks:    group,
		Actuator: hw.actuator,
		Probes:   hw.probes,
		Drain:    cfg.Drain,
		Settle:   cfg.Settle,
		OnChange: growObserver(reg, tracker, met),
	})

	settingsHandler := &control.SettingsHandler{Registry: reg, Store: st, Lifecycle: mgr, Client: client, Now: clk.Now}
	restored, err := settingsHandler.Restore()
	if err != nil {
		log.Printf("settings: restore: %v", err)
	}
	if err := mgr.Boot(); err != nil {
		log.Printf("grow: boot: %v", err)
	}
	if restored && !mgr.State().SettingsReceived {
		if err := mgr.SettingsReceived(); err != nil {
			log.Printf("grow: %v", err)
		}
	}

	scheduler, err := control.NewScheduler(reg, hw.actuator, client, sched, cfg.ReservoirChange)
	if err != nil {
		return err
	}
	scheduler.Metrics = met
	scheduler.Tracker = tracker
	scheduler.Prime(clk.Now())

	var recorder control.Recorder
	if hist != nil {
		recorder = hist
	}
	startTasks(group, cfg, reg, hw, !mgr.State().GrowActive, tasks{
		orchestrator: &control.Orchestrator{Registry: reg, Actuator: hw.actuator, MaxAge: cfg.MaxReadingAge, Metrics: met, Tracker: tracker},
		scheduler:    scheduler,
		publisher:    &control.Publisher{Registry: reg, Client: client, History: recorder, Metrics: met, Tracker: tracker, Retention: cfg.HistoryRetention, MaxAge: cfg.MaxReadingAge},
		metrics:      met,
		now:          clk.Now,
	})

	client.OnSettings(func(payload []byte) {
		if _, err := settingsHandler.Handle(payload); err != nil {
			log.Printf("settings: %v", err)
		}
	})
	client.OnCommand(func(cmd mqtt.Command) {
		if err := applyCommand(mgr, cmd); err != nil {
			log.Printf("grow: command %s: %v", cmd, err)
		}
	})

	if cfg.HTTPAddr != "" {
		if cfg.AdminPasswordHash == "" {
			log.Printf("http: admin_password_hash not set, write endpoints disabled")
		}
		opts := web.Options{
			Addr:      cfg.HTTPAddr,
			Tracker:   tracker,
			Grow:      mgr,
			Settings:  settingsHandler,
			Metrics:   promhttp.HandlerFor(met.Registry, promhttp.HandlerOpts{}),
			AdminUser: cfg.AdminUser,
			AdminHash: cfg.AdminPasswordHash,
			Now:       clk.Now,
		}
		if hist != nil {
			opts.History = hist
		}
		srv := web.New(opts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	exhausted := make(chan float64, 1)
	if cfg.MemoryLimit > 0 {
		mon := &health.Monitor{
			Limit: cfg.MemoryLimit,
			OnExhausted: func(used float64) {
				select {
				case exhausted <- used:
				default:
				}
			},
		}
		healthTicker := time.NewTicker(cfg.HealthPeriod)
		defer healthTicker.Stop()
		go mon.Run(ctx, healthTicker.C)
	}

	// Publish startup event with full status snapshot
	tracker.SetChannels(reg.Status())
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	log.Printf("started: device=%s broker=%s channels=%d grow_active=%v dev=%v",
		deviceID, cfg.Broker, len(reg.Channels()), mgr.State().GrowActive, dev)
	notify(daemon.SdNotifyReady)

	refresh := time.NewTicker(5 * time.Second)
	defer refresh.Stop()
	var ch loopChans
	ch.refresh = refresh.C
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		ch.heartbeat = hb.C
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		wd := time.NewTicker(interval / 2)
		defer wd.Stop()
		ch.watchdog = wd.C
	}
	ch.exhausted = exhausted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ch.sig = sigCh

	err = runLoop(loop{client: client, conn: client, tracker: tracker, notify: notify, now: clk.Now}, ch)

	cancel()
	group.Wait()
	if offErr := hw.actuator.Off(); offErr != nil {
		log.Printf("actuators off: %v", offErr)
	}
	return err
}

// notify sends a state string to systemd. Outside systemd it is a no-op.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("systemd notify %q: %v", state, err)
	}
}

// growObserver mirrors lifecycle transitions into the tracker and metrics. A
// stopped cycle also resets irrigation so it restarts with an on period.
func growObserver(reg *control.Registry, tracker *status.Tracker, met *metrics.Metrics) func(grow.State) {
	return func(s grow.State) {
		tracker.SetGrow(s.SettingsReceived, s.GrowActive)
		metrics.SetBool(met.GrowActive, s.GrowActive)
		if !s.GrowActive {
			reg.StopIrrigation()
			tracker.SetIrrigation(false)
			metrics.SetBool(met.Irrigation, false)
		}
	}
}

// lifecycle is the part of grow.Manager driven by commands.
type lifecycle interface {
	Start() error
	Stop() error
}

func applyCommand(l lifecycle, cmd mqtt.Command) error {
	switch cmd {
	case mqtt.CommandStart:
		return l.Start()
	case mqtt.CommandStop:
		return l.Stop()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

var errExhausted = errors.New("memory exhausted")

type loop struct {
	client  mqtt.Client
	conn    mqtt.ConnectionStatus
	tracker *status.Tracker
	notify  func(state string)
	now     func() time.Time
}

// loopChans are the events the main loop waits on. A nil channel disables
// its event.
type loopChans struct {
	refresh   <-chan time.Time
	heartbeat <-chan time.Time
	watchdog  <-chan time.Time
	exhausted <-chan float64
	sig       <-chan os.Signal
}

func runLoop(l loop, ch loopChans) error {
	for {
		select {
		case s := <-ch.sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.notify(daemon.SdNotifyStopping)
			l.publishStatus("SHUTDOWN", signalName, true)
			return nil

		case used := <-ch.exhausted:
			log.Printf("memory use %.1f%% over limit, exiting for restart", used)
			l.notify(daemon.SdNotifyStopping)
			l.publishStatus("SHUTDOWN", "MEMORY_EXHAUSTED", true)
			return errExhausted

		case <-ch.watchdog:
			l.notify(daemon.SdNotifyWatchdog)

		case <-ch.heartbeat:
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			l.publishStatus("HEARTBEAT", "", false)

		case <-ch.refresh:
			if l.conn != nil {
				l.tracker.SetMQTTConnected(l.conn.IsConnected())
			}
		}
	}
}

func (l loop) publishStatus(event, reason string, retained bool) {
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
	snap := l.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.client.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
