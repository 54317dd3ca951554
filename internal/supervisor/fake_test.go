package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/pkg/models"
)

type fakeHandle struct {
	pid  int
	cfg  LaunchConfig
	done chan struct{}
	once sync.Once
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

// crash simulates the worker exiting on its own.
func (h *fakeHandle) crash() {
	h.once.Do(func() { close(h.done) })
}

type fakeLauncher struct {
	mu         sync.Mutex
	nextPID    int
	handles    []*fakeHandle
	spawnErr   error
	spawnDelay time.Duration
	stubborn   bool
	// gate, when set, blocks Terminate until it is closed.
	gate       chan struct{}
	terminated []string
	reaped     []Process
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 1000}
}

func (l *fakeLauncher) Spawn(ctx context.Context, cfg LaunchConfig) (Handle, error) {
	if l.spawnDelay > 0 {
		time.Sleep(l.spawnDelay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spawnErr != nil {
		return nil, l.spawnErr
	}
	l.nextPID++
	h := &fakeHandle{pid: l.nextPID, cfg: cfg, done: make(chan struct{})}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) Terminate(ctx context.Context, h Handle, grace time.Duration) error {
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stubborn {
		return errors.Wrap(ErrTerminationTimeout, "fake")
	}
	fh := h.(*fakeHandle)
	fh.crash()
	l.terminated = append(l.terminated, fh.cfg.BotID)
	return nil
}

func (l *fakeLauncher) IsAlive(h Handle) bool {
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

func (l *fakeLauncher) Reap(ctx context.Context, p Process, grace time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reaped = append(l.reaped, p)
	return nil
}

// alive counts live handles, optionally for one bot.
func (l *fakeLauncher) alive(botID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, h := range l.handles {
		if botID != "" && h.cfg.BotID != botID {
			continue
		}
		if l.IsAlive(h) {
			n++
		}
	}
	return n
}

func (l *fakeLauncher) last() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

// failingStore fails UpdateStatus for one target status.
type failingStore struct {
	store.Store
	failOn models.BotStatus
}

var errStoreDown = errors.New("store down")

func (s *failingStore) UpdateStatus(ctx context.Context, botID string, status models.BotStatus) error {
	if status == s.failOn {
		return errStoreDown
	}
	return s.Store.UpdateStatus(ctx, botID, status)
}

// memJournal is an in-memory Journal.
type memJournal struct {
	mu      sync.Mutex
	entries map[string]Process
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[string]Process)}
}

func (j *memJournal) Record(p Process) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[p.BotID] = p
	return nil
}

func (j *memJournal) Forget(botID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, botID)
	return nil
}

func (j *memJournal) Entries() ([]Process, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var res []Process
	for _, p := range j.entries {
		res = append(res, p)
	}
	return res, nil
}
