package fleetconfig

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads the fleet file and watches it for changes.
type Loader struct {
	logger *slog.Logger
	v      *viper.Viper
}

// NewLoader creates a loader for the given file path.
func NewLoader(logger *slog.Logger, path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)

	return &Loader{
		logger: logger,
		v:      v,
	}
}

// Load reads and validates the fleet definition. Per-entry validation
// failures are logged and the entries dropped; only an unreadable or
// unparsable file is an error.
func (l *Loader) Load(ctx context.Context) (*Fleet, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	var fleet Fleet
	if err := l.v.Unmarshal(&fleet); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	valid, errs := Validate(&fleet)
	for _, err := range errs {
		l.logger.ErrorContext(ctx, "fleet config entry rejected", "reason", err)
	}

	l.logger.InfoContext(ctx, "fleet config loaded",
		"pools", len(valid.Pools),
		"triggers", len(valid.Triggers),
		"nodeClasses", len(valid.NodeClasses),
		"rejected", len(errs),
	)

	return valid, nil
}

// Watch re-runs Load whenever the file changes and hands the result to
// onChange. A reload that fails to parse keeps the last good fleet: onChange
// is simply not called.
func (l *Loader) Watch(ctx context.Context, onChange func(*Fleet)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.InfoContext(ctx, "fleet config changed, reloading", "file", e.Name)

		fleet, err := l.Load(ctx)
		if err != nil {
			l.logger.ErrorContext(ctx, "fleet config reload failed, keeping previous", "reason", err)

			return
		}

		onChange(fleet)
	})

	l.v.WatchConfig()
}
