package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/frischwood/a3dshell/utils"
)

func TestRunMergedOutput(t *testing.T) {
	var lines []string
	code, err := Run(context.Background(), "/bin/sh",
		[]string{"-c", "echo out; echo err 1>&2; echo done"},
		func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if len(lines) != 3 || lines[0] != "out" || lines[1] != "err" || lines[2] != "done" {
		t.Errorf("unexpected output lines: %v", lines)
	}
}

func TestRunExitCode(t *testing.T) {
	code, err := Run(context.Background(), "/bin/sh", []string{"-c", "exit 3"}, nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestRunMissingBinary(t *testing.T) {
	if _, err := Run(context.Background(), "/nonexistent/a3d-binary", nil, nil); err == nil {
		t.Errorf("missing binary must return an error")
	}
}

func TestRunSimulationCleansTempConfig(t *testing.T) {
	os.Setenv("A3D_SETUP_BIN", "/bin/true")
	defer os.Unsetenv("A3D_SETUP_BIN")

	confDir := t.TempDir()
	params := utils.NewParameterSet()
	params.SimulationName = "cleanup_check"
	params.East = 2645000
	params.North = 1115000
	params.Altitude = 1500

	req := &SimulationRequest{
		Params:       params,
		ConfigDir:    confDir,
		TemplateRoot: "../data/templates",
	}

	code, err := RunSimulation(context.Background(), req, nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}

	tempConfig := filepath.Join(confDir, "_temp_cleanup_check.ini")
	if _, serr := os.Stat(tempConfig); !os.IsNotExist(serr) {
		t.Errorf("temp config %s must be removed after the run", tempConfig)
	}
}

func TestRunSimulationCleansTempConfigOnFailure(t *testing.T) {
	os.Setenv("A3D_SETUP_BIN", "/bin/false")
	defer os.Unsetenv("A3D_SETUP_BIN")

	confDir := t.TempDir()
	params := utils.NewParameterSet()
	params.SimulationName = "failing_run"

	req := &SimulationRequest{
		Params:       params,
		ConfigDir:    confDir,
		TemplateRoot: "../data/templates",
		SkipSnowpack: true,
	}

	code, err := RunSimulation(context.Background(), req, nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return
	}
	if code == 0 {
		t.Errorf("failing setup binary must yield a non-zero exit code")
	}

	if _, serr := os.Stat(filepath.Join(confDir, "_temp_failing_run.ini")); !os.IsNotExist(serr) {
		t.Errorf("temp config must be removed after a failed run")
	}
}

func TestRunAlpine3DRequiresInputTree(t *testing.T) {
	if _, err := RunAlpine3D(context.Background(), "/nonexistent/work", "", nil); err == nil {
		t.Errorf("missing working directory must return an error")
	}

	workDir := t.TempDir()
	if _, err := RunAlpine3D(context.Background(), workDir, "", nil); err == nil {
		t.Errorf("working directory without input/ must return an error")
	}

	if err := os.Mkdir(filepath.Join(workDir, "input"), 0755); err != nil {
		t.Fatalf("failed to prepare working directory: %v", err)
	}
	var marker string
	code, err := RunAlpine3D(context.Background(), workDir, "/bin/pwd",
		func(line string) { marker = line })
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	resolved, _ := filepath.EvalSymlinks(workDir)
	if marker != workDir && marker != resolved {
		t.Errorf("process must run inside %s, reported %s", workDir, marker)
	}
}
