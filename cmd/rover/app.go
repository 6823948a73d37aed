package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rover.control/internal/api"
	"github.com/banshee-data/rover.control/internal/car"
	"github.com/banshee-data/rover.control/internal/config"
	"github.com/banshee-data/rover.control/internal/db"
	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/httputil"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/serialmux"
	"github.com/banshee-data/rover.control/internal/thumbstick"
	"github.com/banshee-data/rover.control/internal/timeutil"
	"github.com/banshee-data/rover.control/internal/transport"
	"github.com/banshee-data/rover.control/internal/version"
)

// appOptions selects how the control core is wired.
type appOptions struct {
	Config *config.ControlConfig
	// DBPath is the journal file; empty disables the journal.
	DBPath string
	// Replay, when non-empty, feeds these lines through a mock port instead
	// of opening Config's serial port.
	Replay         []string
	ReplayInterval time.Duration
	DisableSerial  bool
	// Factory opens serial ports; nil uses serialmux.RealFactory.
	Factory serialmux.Factory
	// HTTPClient talks to the car; nil uses a client with the request timeout.
	HTTPClient httputil.HTTPClient
	Clock      timeutil.Clock
}

// app owns every long-lived component of the rover process.
type app struct {
	cfg       *config.ControlConfig
	observers *dispatch.Observers
	stickDisp *dispatch.Dispatcher
	carDisp   *dispatch.Dispatcher
	car       *car.Controller
	stick     *thumbstick.Controller
	serial    *serialmux.Manager
	db        *db.DB
	journal   *db.Journal
	session   db.Session
	mux       *http.ServeMux
}

func newApp(opts appOptions) (*app, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultControlConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := opts.HTTPClient
	if client == nil {
		client = httputil.NewStandardClient(nil, cfg.GetRequestTimeout())
	}
	tx, err := transport.NewHTTPTransport(cfg.GetCarURL(), client)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, observers: dispatch.NewObservers()}

	a.stickDisp = dispatch.New(tx, a.observers, dispatch.Config{
		Source:  "thumbstick",
		Timeout: cfg.GetRequestTimeout(),
		Clock:   opts.Clock,
	})
	a.carDisp = dispatch.New(tx, a.observers, dispatch.Config{
		Source:  "car",
		Timeout: cfg.GetRequestTimeout(),
		Clock:   opts.Clock,
	})

	carSpeed := cfg.GetCarSpeed()
	a.car = car.New(a.carDisp, timeutil.NewPeriodic(opts.Clock), a.observers, car.Config{
		Speed:    &carSpeed,
		Interval: cfg.GetOscillationInterval(),
	})
	axis := cfg.AxisParams()
	a.stick = thumbstick.New(a.stickDisp, a.observers, thumbstick.Config{
		Axis:     &axis,
		Debounce: cfg.DebounceConfig(),
		Enabled:  cfg.GetThumbstickEnabled(),
	})
	if cfg.GetBridgeCar() {
		a.stick.SetMotorSink(a.car)
	}

	if err := a.openSerial(opts); err != nil {
		a.close()
		return nil, err
	}

	if opts.DBPath != "" {
		if err := a.openJournal(opts.DBPath); err != nil {
			a.close()
			return nil, err
		}
	}

	a.mux = a.routes()
	return a, nil
}

func (a *app) openSerial(opts appOptions) error {
	factory := opts.Factory
	if factory == nil {
		factory = serialmux.RealFactory
	}

	switch {
	case len(opts.Replay) > 0:
		interval := opts.ReplayInterval
		if interval <= 0 {
			interval = 50 * time.Millisecond
		}
		a.serial = serialmux.NewManager(
			serialmux.NewMockSerialMux(opts.Replay, interval),
			serialmux.Connection{Connected: true, PortPath: "replay", Since: time.Now()},
			factory,
		)
		monitoring.Opsf("replaying %d fixture lines every %v", len(opts.Replay), interval)
	case opts.DisableSerial:
		a.serial = serialmux.NewManager(nil, serialmux.Connection{}, factory)
		monitoring.Opsf("serial input disabled")
	default:
		a.serial = serialmux.NewManager(nil, serialmux.Connection{}, factory)
		port := a.cfg.GetSerialPort()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A missing port is not fatal; it can be attached later over the API.
		if _, err := a.serial.Reconnect(ctx, port, serialmux.PortOptions{BaudRate: a.cfg.GetBaudRate()}); err != nil {
			if errors.Is(err, serialmux.ErrManagerClosed) {
				return err
			}
			monitoring.Opsf("continuing without serial input: %v", err)
		}
	}
	return nil
}

func (a *app) openJournal(path string) error {
	database, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	a.db = database

	session, err := database.StartSession(a.cfg.GetCarURL(), a.serial.Connection().PortPath, version.String(), time.Now())
	if err != nil {
		return err
	}
	a.session = session
	a.journal = db.NewJournal(database, session.ID)
	a.observers.Register(a.journal.Observer())
	monitoring.Diagf("journal session %s started in %s", session.ID, path)
	return nil
}

func (a *app) routes() *http.ServeMux {
	cfg := api.Config{
		Car:         a.car,
		Thumbstick:  a.stick,
		Dispatchers: []*dispatch.Dispatcher{a.stickDisp, a.carDisp},
		Observers:   a.observers,
		Serial:      a.serial,
	}
	if a.db != nil {
		cfg.Journal = a.db
	}
	mux := api.NewServer(cfg).ServeMux()

	a.serial.AttachAdminRoutes(mux)
	if a.db != nil {
		a.db.AttachAdminRoutes(mux)
	}
	return mux
}

// run drives serial input, the thumbstick pipeline and the journal writer
// until ctx is cancelled.
func (a *app) run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("serial monitor: %v", err)
		}
		monitoring.Diagf("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.stick.Run(ctx, a.serial); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("thumbstick pipeline: %v", err)
		}
		monitoring.Diagf("thumbstick routine terminated")
	}()

	if a.journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.journal.Run(ctx)
			monitoring.Diagf("journal routine terminated")
		}()
	}

	wg.Wait()
}

// close stops the car, waits for in-flight sends and releases resources.
func (a *app) close() {
	if a.car != nil {
		a.car.EmergencyStop()
	}
	for _, d := range []*dispatch.Dispatcher{a.stickDisp, a.carDisp} {
		if d != nil {
			d.Wait()
			d.Close()
		}
	}
	if a.serial != nil {
		if err := a.serial.Close(); err != nil {
			monitoring.Diagf("closing serial: %v", err)
		}
	}
	if a.journal != nil {
		a.journal.Close()
		a.journal.Flush()
	}
	if a.db != nil {
		if a.session.ID != uuid.Nil {
			if err := a.db.EndSession(a.session.ID, time.Now()); err != nil {
				monitoring.Opsf("end journal session: %v", err)
			}
		}
		if err := a.db.Close(); err != nil {
			monitoring.Opsf("closing journal: %v", err)
		}
	}
}
