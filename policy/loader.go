package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/valvo/telemetry"
)

// Loader reads policy templates from a directory into an engine.
type Loader struct {
	templateDir string
	engine      *Engine
	logger      *telemetry.Logger
	tracer      trace.Tracer
}

// NewLoader creates a template loader for the given directory.
func NewLoader(templateDir string, engine *Engine) *Loader {
	return &Loader{
		templateDir: templateDir,
		engine:      engine,
		logger:      telemetry.NewLogger("policy-loader"),
		tracer:      otel.Tracer("policy-loader"),
	}
}

// LoadAll loads every *.json template under the directory. A malformed
// template is logged and skipped so one bad file cannot block startup;
// the count of loaded policies is returned.
func (l *Loader) LoadAll(ctx context.Context) (int, error) {
	ctx, span := l.tracer.Start(ctx, "policy_loader.load_all",
		trace.WithAttributes(attribute.String("template_dir", l.templateDir)))
	defer span.End()

	if _, err := os.Stat(l.templateDir); os.IsNotExist(err) {
		l.logger.WithContext(ctx).Warn().
			Str("template_dir", l.templateDir).
			Msg("template directory does not exist, no policies loaded")
		return 0, nil
	}

	loaded := 0
	err := filepath.Walk(l.templateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		if err := l.loadFile(ctx, path); err != nil {
			l.logger.WithContext(ctx).Error().
				Err(err).
				Str("file_path", path).
				Msg("skipping malformed policy template")
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to walk template directory: %w", err)
	}

	l.logger.WithContext(ctx).Info().
		Int("count", loaded).
		Str("template_dir", l.templateDir).
		Msg("policy templates loaded")

	return loaded, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) error {
	if err := l.validatePath(path); err != nil {
		return fmt.Errorf("invalid template path %s: %w", path, err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".json")
	policy, err := ParseTemplate(name, data)
	if err != nil {
		return err
	}

	return l.engine.Register(ctx, policy)
}

// validatePath rejects directory traversal out of the template dir.
func (l *Loader) validatePath(path string) error {
	relPath, err := filepath.Rel(filepath.Clean(l.templateDir), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") {
		return fmt.Errorf("path traversal detected")
	}
	return nil
}
