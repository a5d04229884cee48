package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"focustrack/modules/core/timer"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/server"
	uicore "focustrack/modules/ui/core"
)

// replyTimeout bounds how long a command waits for the daemon
const replyTimeout = 5 * time.Second

var (
	statusJSON bool

	focusMinutes int
	breakMinutes int
	focusType    string

	watchURL   string
	watchToken string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current timer state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Start a focus session",
	Long: `Starts a focus session from idle. Lengths not given on the command line
come from the daemon's defaults.

Example:
  focustrack focus --minutes 25 --break 5 --type Work`,
	Args: cobra.NoArgs,
	RunE: runFocus,
}

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Pause focus and start the break",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntent(cmd.Context(), (*uicore.TimerPresenter).StartBreak, timer.ModeRest)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "End the break and resume focus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntent(cmd.Context(), (*uicore.TimerPresenter).EndBreak, timer.ModeFocus)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "End the current session and return to idle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntent(cmd.Context(), (*uicore.TimerPresenter).CompleteSession, timer.ModeIdle)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the timer live",
	Long: `Opens a channel to the daemon and prints the countdown until interrupted.
With --ws the channel goes through the daemon's WebSocket endpoint.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw state as JSON")

	focusCmd.Flags().IntVarP(&focusMinutes, "minutes", "m", 0, "Focus length in minutes")
	focusCmd.Flags().IntVarP(&breakMinutes, "break", "b", -1, "Break length in minutes")
	focusCmd.Flags().StringVarP(&focusType, "type", "t", "", fmt.Sprintf("Focus type %v", timer.FocusTypes))

	watchCmd.Flags().StringVar(&watchURL, "ws", "", "WebSocket URL, e.g. ws://127.0.0.1:9099/ws")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "Bearer token for --ws")
}

// openPresenter connects a presenter to the daemon and waits for the first state.
// autostart launches the daemon when it is not running.
func openPresenter(ctx context.Context, autostart bool) (*uicore.TimerPresenter, error) {
	if autostart {
		started, err := daemon.EnsureDaemon(forwardedFlags()...)
		if err != nil {
			return nil, err
		}
		if started {
			fmt.Fprintln(os.Stderr, "Daemon started")
		}
	} else if !daemon.IsRunning() {
		return nil, errors.New("daemon is not running (start it with 'focustrack daemon start')")
	}

	dialCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	client, err := daemon.Dial(dialCtx)
	if err != nil {
		return nil, err
	}
	return syncPresenter(dialCtx, client)
}

func syncPresenter(ctx context.Context, ch uicore.Channel) (*uicore.TimerPresenter, error) {
	p := uicore.NewTimerPresenter(ch)
	synced := waitFor(p, func(vm uicore.TimerVM) bool { return vm.Synced })
	if err := p.Open(); err != nil {
		p.Close()
		return nil, err
	}
	if _, err := awaitVM(ctx, synced); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// waitFor returns a channel receiving the first view model matching cond,
// or the first one after the channel was lost
func waitFor(p *uicore.TimerPresenter, cond func(uicore.TimerVM) bool) <-chan uicore.TimerVM {
	matched := make(chan uicore.TimerVM, 1)
	p.Subscribe(func(vm uicore.TimerVM) {
		if cond(vm) || !vm.Connected {
			select {
			case matched <- vm:
			default:
			}
		}
	})
	return matched
}

func awaitVM(ctx context.Context, matched <-chan uicore.TimerVM) (uicore.TimerVM, error) {
	select {
	case vm := <-matched:
		if !vm.Connected {
			return vm, daemon.ErrChannelClosed
		}
		return vm, nil
	case <-ctx.Done():
		return uicore.TimerVM{}, fmt.Errorf("no reply from daemon: %w", ctx.Err())
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := openPresenter(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer p.Close()

	state := p.State()
	if statusJSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printState(state)
	return nil
}

func runFocus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*replyTimeout)
	defer cancel()

	p, err := openPresenter(ctx, true)
	if err != nil {
		return err
	}
	defer p.Close()

	if cmd.Flags().Changed("minutes") {
		if err := p.SetFocusLength(focusMinutes); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("break") {
		if err := p.SetBreakLength(breakMinutes); err != nil {
			return err
		}
	}
	if focusType != "" {
		if err := p.SetFocusType(focusType); err != nil {
			return err
		}
	}

	return sendAndWait(ctx, p, (*uicore.TimerPresenter).StartFocus, timer.ModeFocus)
}

func runIntent(ctx context.Context, intent func(*uicore.TimerPresenter) error, want timer.Mode) error {
	ctx, cancel := context.WithTimeout(ctx, 2*replyTimeout)
	defer cancel()

	p, err := openPresenter(ctx, true)
	if err != nil {
		return err
	}
	defer p.Close()

	return sendAndWait(ctx, p, intent, want)
}

// sendAndWait runs an intent and waits until the daemon reports mode want
func sendAndWait(ctx context.Context, p *uicore.TimerPresenter, intent func(*uicore.TimerPresenter) error, want timer.Mode) error {
	if p.State().Mode == want {
		printState(p.State())
		return nil
	}

	reply := waitFor(p, func(vm uicore.TimerVM) bool {
		return vm.State.Mode == want || vm.LastError != ""
	})
	if err := intent(p); err != nil {
		if errors.Is(err, timer.ErrNotApplicable) {
			return fmt.Errorf("not possible while %s", p.State().Mode)
		}
		return err
	}

	vm, err := awaitVM(ctx, reply)
	if err != nil {
		return err
	}
	if vm.State.Mode != want {
		return errors.New(vm.LastError)
	}
	printState(vm.State)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *uicore.TimerPresenter
	var err error
	if watchURL != "" {
		p, err = openWebSocketPresenter(ctx, watchURL, watchToken)
	} else {
		p, err = openPresenter(ctx, false)
	}
	if err != nil {
		return err
	}
	defer p.Close()

	// On a terminal one line is repainted every second from local extrapolation.
	// Piped output gets one line per update from the daemon.
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	p.Subscribe(func(vm uicore.TimerVM) {
		if vm.Connected {
			printLine(vm, interactive)
		}
	})
	lost := waitFor(p, func(uicore.TimerVM) bool { return false })

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	printLine(p.View(time.Now()), interactive)
	for {
		select {
		case <-ctx.Done():
			if interactive {
				fmt.Println()
			}
			return nil
		case <-lost:
			if interactive {
				fmt.Println()
			}
			return errors.New("daemon closed the channel")
		case now := <-ticker.C:
			if interactive {
				printLine(p.View(now), true)
			}
		}
	}
}

func openWebSocketPresenter(ctx context.Context, rawURL, token string) (*uicore.TimerPresenter, error) {
	dialCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	transport, err := server.DialWebSocket(dialCtx, rawURL, token)
	if err != nil {
		return nil, err
	}
	return syncPresenter(dialCtx, daemon.NewClient(transport))
}

func printState(s timer.State) {
	fmt.Printf("Mode:   %s\n", s.Mode)
	if s.Mode == timer.ModeIdle {
		fmt.Printf("Next:   %d min focus, %d min break\n", s.FocusLengthMinutes, s.BreakLengthMinutes)
		return
	}
	fmt.Printf("Type:   %s\n", s.FocusType)
	fmt.Printf("Focus:  %s of %d min\n", formatClock(s.RemainingFocusSeconds), s.FocusLengthMinutes)
	fmt.Printf("Break:  %s of %d min\n", formatClock(s.RemainingBreakSeconds), s.BreakLengthMinutes)
}

func printLine(vm uicore.TimerVM, repaint bool) {
	if repaint {
		fmt.Print("\r\033[K" + formatLine(vm))
		return
	}
	fmt.Println(formatLine(vm))
}

func formatLine(vm uicore.TimerVM) string {
	s := vm.State
	switch s.Mode {
	case timer.ModeFocus:
		return fmt.Sprintf("%-6s %s  %s (break %s)", s.Mode, formatClock(vm.Display.RemainingFocusSeconds), s.FocusType, formatClock(vm.Display.RemainingBreakSeconds))
	case timer.ModeRest:
		return fmt.Sprintf("%-6s %s  (focus %s left)", s.Mode, formatClock(vm.Display.RemainingBreakSeconds), formatClock(vm.Display.RemainingFocusSeconds))
	default:
		return fmt.Sprintf("%-6s next %d/%d min", s.Mode, s.FocusLengthMinutes, s.BreakLengthMinutes)
	}
}

// formatClock renders seconds as MM:SS
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
