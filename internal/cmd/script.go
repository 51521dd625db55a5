package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fightstick/fightstick/macro"
	"github.com/fightstick/fightstick/macro/scriptfile"
)

// ScriptCommand groups offline script tooling.
type ScriptCommand struct {
	Info     ScriptInfo     `cmd:"" help:"Show the steps, timing and fingerprint of a script"`
	Validate ScriptValidate `cmd:"" help:"Check scripts without playing them"`
	Convert  ScriptConvert  `cmd:"" help:"Convert a script to another format"`
}

type ScriptInfo struct {
	Path     string        `arg:"" help:"Script file or 'builtin'"`
	Repeat   int           `help:"Repeat factor used for the timing estimate" default:"4"`
	Interval time.Duration `help:"Host poll interval used for the timing estimate" default:"5ms"`
	Steps    bool          `help:"List every step"`

	Out io.Writer `kong:"-"`
}

func (c *ScriptInfo) Run() error {
	s, err := scriptfile.Load(c.Path)
	if err != nil {
		return err
	}
	if c.Repeat < 0 {
		return fmt.Errorf("%w: %d", macro.ErrInvalidRepeat, c.Repeat)
	}
	out := c.Out
	if out == nil {
		out = os.Stdout
	}

	startup, run := macro.PollsFor(s, c.Repeat)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "script\t%s\n", c.Path)
	fmt.Fprintf(tw, "fingerprint\t%s\n", s.Fingerprint())
	fmt.Fprintf(tw, "steps\t%d\n", s.Len())
	fmt.Fprintf(tw, "units\t%d\n", s.TotalUnits())
	fmt.Fprintf(tw, "startup polls\t%d\n", startup)
	fmt.Fprintf(tw, "run polls\t%d\n", run)
	fmt.Fprintf(tw, "estimated time\t%s\n", time.Duration(startup+run)*c.Interval)
	if c.Steps {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "#\tbuttons\tdir\tduration")
		for i, in := range s.Steps() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i, in.Buttons, in.Direction, in.Duration)
		}
	}
	return tw.Flush()
}

type ScriptValidate struct {
	Paths []string `arg:"" help:"Script files to check"`
}

func (c *ScriptValidate) Run(logger *slog.Logger) error {
	var errs []error
	for _, p := range c.Paths {
		s, err := scriptfile.Load(p)
		if err != nil {
			logger.Error("Invalid script", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Info("Script OK", "path", p, "steps", s.Len(), "fingerprint", s.Fingerprint())
	}
	return errors.Join(errs...)
}

type ScriptConvert struct {
	Input  string `arg:"" help:"Source script file or 'builtin'"`
	Output string `arg:"" help:"Destination file; the format follows its extension unless --format is set"`
	Format string `help:"Output format: yaml, toml, json or bin"`
	Force  bool   `help:"Overwrite if the file already exists"`
}

func (c *ScriptConvert) Run(logger *slog.Logger) error {
	s, err := scriptfile.Load(c.Input)
	if err != nil {
		return err
	}
	f, err := scriptfile.FormatFromPath(c.Output)
	if c.Format != "" {
		f, err = scriptfile.ParseFormat(c.Format)
	}
	if err != nil {
		return err
	}
	if !c.Force {
		if _, err := os.Stat(c.Output); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	data, err := scriptfile.Encode(s, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return err
	}
	logger.Info("Script written", "path", c.Output, "format", f, "fingerprint", s.Fingerprint())
	return nil
}
