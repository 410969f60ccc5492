package devctrl

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SetHooks are the command set's outbound effects. All hooks are optional
// and are invoked outside the set lock.
type SetHooks struct {
	// OnRead receives the result snapshot of every completed read.
	OnRead func(value *AttributeValue)
	// OnStatus receives the status line of commands removed on timeout.
	OnStatus func(status string)
	// OnSuggestState receives the worst health among still-pending
	// commands, with the status of the command that caused it. Only
	// called when the worst health is not ok.
	OnSuggestState func(health Health, status string)
	// OnActivity signals forward progress (a command completed), used to
	// feed a watchdog.
	OnActivity func()
}

// CommandSet owns the set of in-flight commands for one device and
// reconciles it whenever any member reports an event. Reconciliation is
// two-phase: decisions are taken and re-started commands re-armed under the
// set lock, effects (hooks, issuing) are applied after it is released.
type CommandSet struct {
	mu     sync.Mutex
	cmds   []*Command
	hooks  SetHooks
	logger *zap.Logger
}

func NewCommandSet(logger *zap.Logger, hooks SetHooks) *CommandSet {
	return &CommandSet{hooks: hooks, logger: logger}
}

// Add inserts a command and subscribes the set to its events. The command is
// not started.
func (s *CommandSet) Add(cmd *Command) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
	cmd.Subscribe(s)
}

// OnCommandEvent implements CommandListener.
func (s *CommandSet) OnCommandEvent(*Command) {
	s.Reconcile()
}

// Reconcile removes settled commands, surfaces their effects and re-arms
// recurrent ones. Concurrent calls serialize on the set lock; each call sees
// a consistent snapshot.
func (s *CommandSet) Reconcile() {
	now := time.Now()

	s.mu.Lock()
	var (
		keep      []*Command
		reads     []*AttributeValue
		statuses  []string
		restarts  []*Command
		worst     = HealthOK
		worstText string
		activity  bool
	)
	for _, cmd := range s.cmds {
		switch {
		case cmd.TimedOut():
			statuses = append(statuses, cmd.Status())
		case cmd.Done():
			if r := cmd.Result(); r != nil {
				reads = append(reads, r)
			}
			activity = true
			if cmd.Recurrent() {
				remaining := cmd.StartedAt().Add(cmd.Period()).Sub(now)
				if remaining < 0 {
					remaining = 0
				}
				pace := NewDelay(s.logger, remaining)
				cmd.ClearConditions()
				cmd.Gate(pace, nil)
				// arm both before the lock is released: a reconcile
				// entering right after the unlock must not see the
				// command done and re-arm it a second time
				pace.arm()
				cmd.arm()
				keep = append(keep, pace, cmd)
				restarts = append(restarts, pace, cmd)
			}
		default:
			keep = append(keep, cmd)
			if h := cmd.Health(); h != HealthOK {
				if w := WorseHealth(worst, h); w != worst {
					worst = w
					worstText = cmd.Status()
				}
			}
		}
	}
	s.cmds = keep
	hooks := s.hooks
	s.mu.Unlock()

	for _, r := range reads {
		if hooks.OnRead != nil {
			hooks.OnRead(r)
		}
	}
	for _, st := range statuses {
		if hooks.OnStatus != nil {
			hooks.OnStatus(st)
		}
	}
	if worst != HealthOK && hooks.OnSuggestState != nil {
		hooks.OnSuggestState(worst, worstText)
	}
	if activity && hooks.OnActivity != nil {
		hooks.OnActivity()
	}
	for _, cmd := range restarts {
		cmd.checkConditions()
	}
}

// Remove cancels the commands and drops them from the set. Commands no
// longer (or never) tracked are just cancelled.
func (s *CommandSet) Remove(cmds ...*Command) {
	drop := make(map[*Command]bool, len(cmds))
	for _, cmd := range cmds {
		drop[cmd] = true
	}
	s.mu.Lock()
	keep := s.cmds[:0]
	for _, cmd := range s.cmds {
		if !drop[cmd] {
			keep = append(keep, cmd)
		}
	}
	s.cmds = keep
	s.mu.Unlock()
	for _, cmd := range cmds {
		cmd.Cancel()
	}
}

// HasPending reports whether a not-yet-settled command with the given name
// is in the set.
func (s *CommandSet) HasPending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.cmds {
		if cmd.Name() == name && cmd.Pending() {
			return true
		}
	}
	return false
}

// Len returns the number of commands currently tracked.
func (s *CommandSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cmds)
}

// CancelAll cancels and drops every command. Listeners are not notified.
func (s *CommandSet) CancelAll() {
	s.mu.Lock()
	cmds := s.cmds
	s.cmds = nil
	s.mu.Unlock()
	for _, cmd := range cmds {
		cmd.Cancel()
	}
}
