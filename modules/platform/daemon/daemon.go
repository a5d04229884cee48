package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// EnvDaemonMode marks the re-executed background process
const EnvDaemonMode = "FOCUSTRACK_DAEMON"

const (
	startTimeout = 3 * time.Second
	stopTimeout  = 5 * time.Second
	pollInterval = 100 * time.Millisecond
)

// IsDaemonMode reports whether this process is the background daemon
func IsDaemonMode() bool {
	return os.Getenv(EnvDaemonMode) == "1"
}

// daemonCommand builds `<self> daemon run <globalArgs>` in its own session
// with no stdio, so it outlives the terminal that launched it
func daemonCommand(executable string, globalArgs []string) *exec.Cmd {
	args := append([]string{"daemon", "run"}, globalArgs...)
	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), EnvDaemonMode+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// waitUntil polls cond until it holds or timeout passes
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		time.Sleep(pollInterval)
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

// StartDaemon launches the timer daemon in the background and waits for its
// socket to accept connections. globalArgs carries the --config, --name and
// --verbose flags of the caller. Returns the daemon PID.
func StartDaemon(globalArgs ...string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	cmd := daemonCommand(executable, globalArgs)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()

	if !waitUntil(startTimeout, IsRunning) {
		return 0, fmt.Errorf("daemon (PID %d) did not open %s within %s",
			pid, GetSocketPath(), startTimeout)
	}
	return pid, nil
}

// StopDaemon asks the daemon to shut down with SIGTERM. A daemon still up
// after stopTimeout is killed.
func StopDaemon() error {
	pid := GetServerPID()
	if pid == 0 {
		return errors.New("daemon not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon PID %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon PID %d: %w", pid, err)
	}
	notRunning := func() bool { return !IsRunning() }
	if waitUntil(stopTimeout, notRunning) {
		return nil
	}

	proc.Kill()
	if !waitUntil(pollInterval, notRunning) {
		return fmt.Errorf("daemon PID %d survived SIGKILL", pid)
	}
	return nil
}

// Status describes the daemon of the current instance in one line
func Status() string {
	if !IsRunning() {
		return "Daemon is not running"
	}
	return fmt.Sprintf("Daemon running (PID: %d, Socket: %s)", GetServerPID(), GetSocketPath())
}

// EnsureDaemon starts the daemon if it is down. started is false when one was
// already serving this instance.
func EnsureDaemon(globalArgs ...string) (started bool, err error) {
	if IsRunning() {
		return false, nil
	}
	if _, err := StartDaemon(globalArgs...); err != nil {
		return false, err
	}
	return true, nil
}
