package log

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger tagged with the boleta subsystem that owns it
// (http, payslip, export, worker). The component is attached once, as an
// attribute, so every record carries it.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

// Config selects the handler and component of a Logger. A nil Handler writes
// text to stdout at Level.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// New builds a Logger from cfg. An empty component defaults to ComponentApp.
func New(cfg Config) *Logger {
	h := cfg.Handler
	if h == nil {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	}
	if cfg.Component == "" {
		cfg.Component = ComponentApp
	}
	return wrap(slog.New(h), cfg.Component)
}

// Default returns a Logger writing through slog's default handler.
func Default(component string) *Logger {
	return New(Config{Handler: slog.Default().Handler(), Component: component})
}

func wrap(base *slog.Logger, component string) *Logger {
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		base:      base,
		component: component,
	}
}

// With returns a Logger carrying args in addition to the component.
func (l *Logger) With(args ...any) *Logger {
	return wrap(l.base.With(args...), l.component)
}

// WithComponent returns a Logger for another component, keeping other attributes.
func (l *Logger) WithComponent(component string) *Logger {
	return wrap(l.base, component)
}

// WithPayslip returns a Logger carrying the payslip id.
func (l *Logger) WithPayslip(id string) *Logger {
	return l.With(FieldPayslipID, id)
}

func (l *Logger) Component() string {
	return l.component
}
