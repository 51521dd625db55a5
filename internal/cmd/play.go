package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fightstick/fightstick/device"
	"github.com/fightstick/fightstick/device/pokken"
	"github.com/fightstick/fightstick/internal/attach"
	"github.com/fightstick/fightstick/internal/log"
	"github.com/fightstick/fightstick/internal/server/usb"
	"github.com/fightstick/fightstick/internal/util"
	"github.com/fightstick/fightstick/macro"
	"github.com/fightstick/fightstick/macro/scriptfile"
	"github.com/fightstick/fightstick/virtualbus"
)

type Play struct {
	Script            string           `help:"Macro script (.yaml, .toml, .json, .lua, .bin) or 'builtin'" default:"builtin" env:"FIGHTSTICK_SCRIPT"`
	Repeat            int              `help:"Times each fresh report is resent before the next one is computed" default:"4" env:"FIGHTSTICK_REPEAT"`
	ControlRequests   bool             `help:"Serve HID GET_REPORT/SET_REPORT on the control endpoint" default:"false" env:"FIGHTSTICK_CONTROL_REQUESTS"`
	Vid               string           `help:"Override the USB vendor ID (e.g. 0x0f0d)" env:"FIGHTSTICK_VID"`
	Pid               string           `help:"Override the USB product ID (e.g. 0x0092)" env:"FIGHTSTICK_PID"`
	Bus               uint32           `help:"Virtual bus number the pad is exported on" default:"1" env:"FIGHTSTICK_BUS"`
	AutoAttach        bool             `help:"Attach the pad with the local usbip client once exported" default:"false" env:"FIGHTSTICK_AUTO_ATTACH"`
	UsbServerConfig   usb.ServerConfig `embed:"" prefix:"usb."`
	ConnectionTimeout time.Duration    `help:"Deadline for a client to finish its devlist or import exchange" default:"10s" env:"FIGHTSTICK_CONNECTION_TIMEOUT"`
}

// Run is called by Kong when the play command is executed.
func (p *Play) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := p.Start(ctx, logger, rawLogger)
	if err != nil && util.IsRunFromGUI() {
		logger.Error("fightstick stopped", "error", err)
		fmt.Println("Press Enter to exit...")
		_, _ = fmt.Scanln()
	}
	return err
}

// Start exports the pad and plays the script until ctx is cancelled.
func (p *Play) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	script, err := scriptfile.Load(p.Script)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	engine, err := macro.NewEngine(script, p.Repeat)
	if err != nil {
		return err
	}
	opts, err := p.padOptions(logger)
	if err != nil {
		return err
	}
	pad := pokken.New(newProgressSource(engine, logger), opts)

	p.UsbServerConfig.ConnectionTimeout = p.ConnectionTimeout
	srv := usb.New(p.UsbServerConfig, logger, rawLogger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-srv.Ready():
	}
	defer srv.Close()

	bus, err := virtualbus.NewWithBusId(p.Bus)
	if err != nil {
		return fmt.Errorf("create bus %d: %w", p.Bus, err)
	}
	if err := srv.AddBus(bus); err != nil {
		_ = bus.Close()
		return err
	}
	defer srv.RemoveBus(p.Bus)

	devCtx, err := bus.Add(pad)
	if err != nil {
		return fmt.Errorf("export pad: %w", err)
	}
	meta := device.GetDeviceMeta(devCtx)

	logger.Info("Playing macro",
		"script", p.Script,
		"steps", script.Len(),
		"units", script.TotalUnits(),
		"repeat", p.Repeat,
		"fingerprint", script.Fingerprint())
	logger.Info("Pad exported", "busid", meta.BusIDString(), "addr", srv.Addr())

	if p.AutoAttach {
		if attach.CheckPrerequisites(logger) {
			go func() {
				if err := attach.Attach(ctx, meta, srv.GetListenPort(), logger); err != nil {
					logger.Warn("Auto-attach failed; attach manually", "busid", meta.BusIDString())
				}
			}()
		} else {
			logger.Warn("Auto-attach prerequisites not met", "busid", meta.BusIDString())
		}
	}

	select {
	case <-ctx.Done():
		_ = srv.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (p *Play) padOptions(logger *slog.Logger) (*pokken.Options, error) {
	opts := &pokken.Options{ControlRequests: p.ControlRequests, Logger: logger}
	var err error
	if opts.IdVendor, err = parseID("vid", p.Vid); err != nil {
		return nil, err
	}
	if opts.IdProduct, err = parseID("pid", p.Pid); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseID(name, s string) (*uint16, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	id := uint16(v)
	return &id, nil
}

// progressSource logs playback milestones around an Engine. The pad
// serialises calls, so it keeps plain fields.
type progressSource struct {
	engine *macro.Engine
	logger *slog.Logger
	state  macro.State
	done   bool
}

func newProgressSource(e *macro.Engine, logger *slog.Logger) *progressSource {
	return &progressSource{engine: e, logger: logger, state: e.Player().State()}
}

func (s *progressSource) NextReport() pokken.Report {
	player := s.engine.Player()
	before := player.Cursor()
	r := s.engine.NextReport()
	if s.done {
		return r
	}

	// A fresh Run computation with nothing elapsed starts a new step.
	if s.engine.Fresh() && s.state == macro.StateRun && before.Elapsed == 0 {
		s.logger.Debug("Step", "index", before.Step, "instruction", player.Script().At(before.Step).String())
	}
	if state := player.State(); state != s.state {
		s.logger.Debug("Playback state", "from", s.state, "to", state, "tick", s.engine.Ticks())
		s.state = state
		if state == macro.StateDone {
			s.done = true
			s.logger.Info("Macro finished; holding neutral", "ticks", s.engine.Ticks())
		}
	}
	return r
}
