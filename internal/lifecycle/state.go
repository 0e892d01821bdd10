package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the update lifecycle.
type State int

const (
	Idle State = iota
	CheckingForUpdate
	UpdateAvailable
	Downloading
	Downloaded
	Relaunching
	Applying
	Applied
	ApplyFailed
	CleaningUp
)

var stateNames = [...]string{
	Idle:              "idle",
	CheckingForUpdate: "checking-for-update",
	UpdateAvailable:   "update-available",
	Downloading:       "downloading",
	Downloaded:        "downloaded",
	Relaunching:       "relaunching",
	Applying:          "applying",
	Applied:           "applied",
	ApplyFailed:       "apply-failed",
	CleaningUp:        "cleaning-up",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// allowed lists the legal moves. Relaunching has no way forward in the
// launching process: the launched artifact continues from Idle in apply mode.
var allowed = map[State][]State{
	Idle:              {CheckingForUpdate, Applying, CleaningUp},
	CheckingForUpdate: {Idle, UpdateAvailable},
	UpdateAvailable:   {Downloading, Idle},
	Downloading:       {Idle, Downloaded},
	Downloaded:        {Relaunching, Applying},
	Relaunching:       {Idle},
	Applying:          {Applied, ApplyFailed, Idle},
	Applied:           {CleaningUp},
	ApplyFailed:       {CleaningUp},
	CleaningUp:        {Idle},
}

// Transition is published to subscribers on every state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// machine holds the current state and the subscribers.
type machine struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan Transition
	nextID int
	now    func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{
		state: Idle,
		subs:  make(map[int]chan Transition),
		now:   now,
	}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// to moves to next if allowed from the current state.
func (m *machine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !canMove(from, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.state = next
	m.publish(Transition{From: from, To: next, At: m.now()})
	return nil
}

// reset forces Idle. Used when a panic left the state unknown.
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return
	}
	from := m.state
	m.state = Idle
	m.publish(Transition{From: from, To: Idle, At: m.now()})
}

// publish must be called with mu held. A full subscriber misses the
// notification; the lifecycle never blocks on a slow reader.
func (m *machine) publish(t Transition) {
	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

func (m *machine) subscribe(buffer int) (<-chan Transition, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func canMove(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
