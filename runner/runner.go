// Package runner launches the external simulation binaries and relays
// their output line by line while they run.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/frischwood/a3dshell/utils"
)

// LineFunc receives one output line at a time, without the trailing
// newline, as the child process produces it.
type LineFunc func(line string)

// runCmd starts the command with merged stdout/stderr, streams every
// output line through onLine and blocks until exit. The returned exit code
// is only meaningful when err is nil; zero is the sole success value.
func runCmd(cmd *exec.Cmd, onLine LineFunc) (int, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}

	combinedOutput, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("Failed to obtain subprocess stderr pipe: %v", err)
	}
	cmd.Stdout = cmd.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("Failed to start process: %v", err)
	}

	log.Println("Process running with PID", cmd.Process.Pid)

	reader := bufio.NewReader(combinedOutput)
	for {
		line, rerr := reader.ReadString('\n')
		if len(line) > 0 && onLine != nil {
			onLine(strings.TrimRight(line, "\n"))
		}
		if rerr != nil {
			break
		}
	}

	err = cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("Process exited: %v", err)
	}
	return 0, nil
}

// Run launches a binary with the given arguments in the current working
// directory.
func Run(ctx context.Context, binary string, args []string, onLine LineFunc) (int, error) {
	return runCmd(exec.CommandContext(ctx, binary, args...), onLine)
}

// SimulationRequest carries everything needed to launch the setup
// pipeline for one parameter set.
type SimulationRequest struct {
	Params       *utils.ParameterSet
	ConfigDir    string
	TemplateRoot string
	LogLevel     string
	SkipSnowpack bool
}

// RunSimulation serialises the parameter set into a temp config next to
// the saved ones, launches the setup binary against it and removes the
// temp config when the run is over, whatever the outcome.
func RunSimulation(ctx context.Context, req *SimulationRequest, onLine LineFunc) (int, error) {
	content, err := utils.SerialiseConfig(req.Params, req.TemplateRoot)
	if err != nil {
		return -1, err
	}

	tempConfig := filepath.Join(req.ConfigDir, fmt.Sprintf("_temp_%s.ini", req.Params.SimulationName))
	if err := ioutil.WriteFile(tempConfig, content, 0644); err != nil {
		return -1, fmt.Errorf("Failed to write temp config %s: %v", tempConfig, err)
	}
	defer os.Remove(tempConfig)

	logLevel := req.LogLevel
	if len(logLevel) == 0 {
		logLevel = "INFO"
	}

	args := []string{"--config", tempConfig, "--log-level", logLevel}
	if req.SkipSnowpack {
		args = append(args, "--skip-snowpack")
	}

	return Run(ctx, utils.SetupBin(), args, onLine)
}

// RunAlpine3D launches the Alpine3D binary inside a prepared working
// directory. The directory must carry the input/ tree produced by a
// previous setup run.
func RunAlpine3D(ctx context.Context, workingDir, binary string, onLine LineFunc) (int, error) {
	info, err := os.Stat(workingDir)
	if err != nil || !info.IsDir() {
		return -1, fmt.Errorf("working directory %s not found", workingDir)
	}
	if _, err := os.Stat(filepath.Join(workingDir, "input")); err != nil {
		return -1, fmt.Errorf("working directory %s is missing its input/ folder", workingDir)
	}

	if len(binary) == 0 {
		binary = utils.Alpine3DBin()
	}

	cmd := exec.CommandContext(ctx, binary)
	cmd.Dir = workingDir
	return runCmd(cmd, onLine)
}
