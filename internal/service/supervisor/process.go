package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mitchellh/go-ps"
)

// Process is a running backend process.
type Process struct {
	PID        int
	Executable string
}

// FindProcesses lists processes named executable whose command line
// mentions marker, typically the application root. Processes whose command
// line cannot be read are skipped rather than guessed at.
func FindProcesses(executable, marker string) ([]Process, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()
	found := make([]Process, 0)

	for _, process := range processList {
		if process.Pid() == thisProcessID || process.Executable() != executable {
			continue
		}

		if marker != "" && !cmdlineContains(process.Pid(), marker) {
			continue
		}

		found = append(found, Process{PID: process.Pid(), Executable: process.Executable()})
	}

	return found, nil
}

// Terminate kills the given processes and returns every failure.
func Terminate(processes []Process) error {
	var errs []error

	for _, process := range processes {
		running, err := os.FindProcess(process.PID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err = running.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill %d: %w", process.PID, err))
		}
	}

	return errors.Join(errs...)
}

func cmdlineContains(pid int, marker string) bool {
	cmdline, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return false
	}

	return bytes.Contains(cmdline, []byte(marker))
}
