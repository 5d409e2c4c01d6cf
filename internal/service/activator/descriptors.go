package activator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/fsutil"
	"github.com/oshokin/translator-release/internal/logger"
)

const (
	descriptorDirMode  = 0o755
	descriptorFileMode = 0o644
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Selection translator backend ({{.ReleaseID}})
After=graphical-session.target

[Service]
Type=simple
WorkingDirectory={{.AppDir}}
Environment=PYTHONPATH={{.AppDir}}
Environment=TRANSLATOR_RELEASE_ID={{.ReleaseID}}
Environment=TRANSLATOR_DATA_DIR={{.DataDir}}
Environment=TRANSLATOR_IPC_SOCKET={{.Socket}}
ExecStart={{.Python}} -m {{.Module}}
Restart=on-failure
RestartSec=2

[Install]
WantedBy=default.target
`))

var dbusTemplate = template.Must(template.New("dbus").Parse(`[D-BUS Service]
Name={{.BusName}}
Exec={{.Python}} -m {{.Module}}
{{- if .Unit}}
SystemdService={{.Unit}}
{{- end}}
`))

// descriptorData feeds both templates.
type descriptorData struct {
	ReleaseID string
	AppDir    string
	DataDir   string
	Python    string
	Module    string
	Socket    string
	BusName   string
	Unit      string
}

// Descriptors writes the supervisor and IPC-activation files.
type Descriptors struct {
	cfg *config.Config
}

// NewDescriptors returns a writer for the configured locations.
func NewDescriptors(cfg *config.Config) *Descriptors {
	return &Descriptors{cfg: cfg}
}

// Enabled reports whether descriptors are managed at all.
func (d *Descriptors) Enabled() bool {
	return d.cfg.Service.Manager == config.ManagerSystemd
}

// UnitPath is the systemd user unit file.
func (d *Descriptors) UnitPath() string {
	return filepath.Join(d.cfg.Service.UnitDir, d.cfg.Service.Unit)
}

// DBusPath is the D-Bus session service file.
func (d *Descriptors) DBusPath() string {
	return filepath.Join(d.cfg.Service.DBusServiceDir, d.cfg.Service.BusName+".service")
}

// Write regenerates both files for rel. Each file is replaced whole.
func (d *Descriptors) Write(ctx context.Context, rel release.Release) error {
	if !d.Enabled() {
		return nil
	}

	data := descriptorData{
		ReleaseID: rel.ID,
		AppDir:    rel.AppDir(),
		DataDir:   rel.DataDir(),
		Python:    d.python(rel),
		Module:    d.cfg.Service.Module,
		Socket:    d.cfg.Health.Socket,
		BusName:   d.cfg.Service.BusName,
		Unit:      d.cfg.Service.Unit,
	}

	if err := render(unitTemplate, data, d.UnitPath()); err != nil {
		return err
	}

	if err := render(dbusTemplate, data, d.DBusPath()); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Descriptors written", "unit", d.UnitPath(), "dbus", d.DBusPath())

	return nil
}

// Remove deletes both files.
func (d *Descriptors) Remove(_ context.Context) error {
	if !d.Enabled() {
		return nil
	}

	var errs []error

	for _, path := range []string{d.UnitPath(), d.DBusPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// python is the interpreter the backend runs on.
func (d *Descriptors) python(rel release.Release) string {
	if d.cfg.Runtime.Enabled {
		return filepath.Join(rel.RuntimeDir(), "bin", config.RuntimePython)
	}

	return d.cfg.Runtime.Interpreter
}

func render(tmpl *template.Template, data descriptorData, path string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), descriptorDirMode); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), descriptorFileMode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
