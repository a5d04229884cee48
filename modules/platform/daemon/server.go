package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"focustrack/modules/platform/logger"
)

// Server accepts unix socket connections and attaches each one to the hub
type Server struct {
	socketPath string
	pidPath    string
	listener   net.Listener
	hub        *Hub

	done chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a socket server for the current instance
func NewServer(hub *Hub) *Server {
	return NewServerAt(GetSocketPath(), GetPIDPath(), hub)
}

// NewServerAt creates a socket server with explicit socket and PID paths
func NewServerAt(socketPath, pidPath string, hub *Hub) *Server {
	return &Server{
		socketPath: socketPath,
		pidPath:    pidPath,
		hub:        hub,
		done:       make(chan struct{}),
	}
}

var (
	// baseDir holds sockets and PID files (empty = ~/.focustrack)
	baseDir string
	// instanceName is the current daemon instance name (empty = default)
	instanceName string
)

// SetBaseDir overrides the directory holding sockets and PID files
func SetBaseDir(dir string) {
	baseDir = dir
}

// SetInstanceName sets the daemon instance name for multi-instance support
func SetInstanceName(name string) {
	instanceName = name
}

// GetInstanceName returns the current daemon instance name
func GetInstanceName() string {
	return instanceName
}

// ValidateInstanceName validates that instance name contains only allowed characters
func ValidateInstanceName(name string) error {
	for _, c := range name {
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-') {
			return fmt.Errorf("invalid instance name %q: only A-Z, a-z, 0-9, _, - are allowed", name)
		}
	}
	return nil
}

func stateDir() string {
	dir := baseDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".focustrack")
	}
	os.MkdirAll(dir, 0700)
	return dir
}

func instancePrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "."
}

// GetSocketPath returns the socket path of the current instance
func GetSocketPath() string {
	return filepath.Join(stateDir(), instancePrefix(instanceName)+"socket")
}

// GetPIDPath returns the PID file path of the current instance
func GetPIDPath() string {
	return filepath.Join(stateDir(), instancePrefix(instanceName)+"daemon.pid")
}

// ListInstances returns the running daemon instances, default first
func ListInstances() []string {
	entries, err := os.ReadDir(stateDir())
	if err != nil {
		return nil
	}

	hasDefault := false
	var named []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case name == "daemon.pid":
			hasDefault = true
		case strings.HasSuffix(name, ".daemon.pid"):
			named = append(named, strings.TrimSuffix(name, ".daemon.pid"))
		}
	}
	sort.Strings(named)

	var instances []string
	if hasDefault {
		instances = append(instances, "(default)")
	}
	return append(instances, named...)
}

// SocketPath returns the path the server listens on
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start creates the socket, writes the PID file and begins accepting
func (s *Server) Start() error {
	if isRunningAt(s.pidPath, s.socketPath) {
		return fmt.Errorf("daemon already running (PID %d)", readPID(s.pidPath))
	}

	// No live daemon owns the socket; remove any stale one
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	os.Chmod(s.socketPath, 0600)
	s.listener = listener

	if err := os.WriteFile(s.pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0600); err != nil {
		s.listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("Daemon listening on %s", s.socketPath)
	return nil
}

// Run starts the server and stops it when ctx is done
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop closes the listener and removes the socket and PID files.
// Open channels are owned by the hub and closed by Hub.Close.
func (s *Server) Stop() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	os.Remove(s.socketPath)
	os.Remove(s.pidPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("Accept failed: %v", err)
			continue
		}

		if _, err := s.hub.Attach(NewLineTransport(conn)); err != nil {
			logger.Debug("Rejected connection: %v", err)
		}
	}
}

// IsRunning checks if a daemon is serving the current instance.
// Stale socket and PID files left by a crashed daemon are removed.
func IsRunning() bool {
	return isRunningAt(GetPIDPath(), GetSocketPath())
}

func isRunningAt(pidPath, socketPath string) bool {
	pid := readPID(pidPath)
	if pid == 0 {
		cleanupStaleSocket(socketPath)
		return false
	}

	if !isProcessRunning(pid) || !isSocketConnectable(socketPath) {
		cleanupStaleFiles(pidPath, socketPath)
		return false
	}
	return true
}

func readPID(pidPath string) int {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0
	}
	return pid
}

// isProcessRunning sends signal 0 to check the process exists
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func isSocketConnectable(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func cleanupStaleSocket(socketPath string) {
	info, err := os.Stat(socketPath)
	if err != nil {
		return
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Uid != uint32(os.Getuid()) {
		return // not ours
	}
	os.Remove(socketPath)
}

func cleanupStaleFiles(pidPath, socketPath string) {
	if info, err := os.Stat(pidPath); err == nil {
		if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Uid != uint32(os.Getuid()) {
			return
		}
	}
	os.Remove(pidPath)
	cleanupStaleSocket(socketPath)
}

// Wipe removes orphaned socket and PID files of a daemon that is not running
func Wipe() error {
	if IsRunning() {
		return fmt.Errorf("daemon is running (PID %d), stop it first", GetServerPID())
	}

	var errs []error
	if err := os.Remove(GetPIDPath()); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("pid file: %w", err))
	}
	if err := os.Remove(GetSocketPath()); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("socket: %w", err))
	}
	return errors.Join(errs...)
}

// GetServerPID returns the PID of the running daemon, or 0 if not running
func GetServerPID() int {
	return readPID(GetPIDPath())
}
