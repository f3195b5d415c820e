package services

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"secretsanta/internal/models"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// saveTimeout bounds a single store write.
const saveTimeout = 5 * time.Second

// Gateway is the durable storage the engine reads at startup and writes
// after every mutation.
type Gateway interface {
	SaveParticipants(ctx context.Context, participants []models.Participant) error
	LoadParticipants(ctx context.Context) ([]models.Participant, error)
	SaveMatches(ctx context.Context, matches []models.Match) error
	LoadMatches(ctx context.Context) ([]models.Match, error)
}

// RandSource picks an index in [0, n).
type RandSource interface {
	Intn(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the random source used to draw receivers.
func WithRand(r RandSource) Option {
	return func(e *Engine) { e.rand = r }
}

// WithClock replaces the clock used to stamp committed matches.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns one gift exchange: its participants, the giver->receiver
// mapping, the pools derived from them and any pending draw.
// All mutating operations are serialised; reads see a consistent snapshot.
type Engine struct {
	mu           sync.RWMutex
	store        Gateway
	rand         RandSource
	now          func() time.Time
	participants []models.Participant
	matches      map[string]string    // giver -> receiver
	committedAt  map[string]time.Time // giver -> first confirmation
	pools        models.Pools
	pending      *models.PendingMatch
	needsReset   bool
	lastErr      error
	version      uint64

	// Sequence of the last mutation asking for each record to be saved.
	// Guarded by mu.
	seq       uint64
	wantSaveP uint64
	wantSaveM uint64
	saveMu    sync.Mutex // serialises store writes
	savedSeqP uint64     // guarded by saveMu
	savedSeqM uint64     // guarded by saveMu

	events broadcaster
}

// NewEngine creates an empty engine persisting to store.
func NewEngine(store Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
		participants: make([]models.Participant, 0),
		matches:      make(map[string]string),
		committedAt:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.recompute()
	return e
}

// LoadEngine creates an engine and restores its state from store. The
// match mapping is rebuilt by folding each stored match into mapping[giver] = receiver.
func LoadEngine(ctx context.Context, store Gateway, opts ...Option) (*Engine, error) {
	e := NewEngine(store, opts...)

	participants, err := store.LoadParticipants(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := store.LoadMatches(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range participants {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" || e.indexOf(p.Name) >= 0 {
			logger.Warningf("Skipping invalid or duplicate stored participant %q", p.Name)
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		e.participants = append(e.participants, p)
	}

	taken := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.Giver == m.Receiver || e.exactIndex(m.Giver) < 0 || e.exactIndex(m.Receiver) < 0 || taken[m.Receiver] {
			logger.Warningf("Skipping invalid stored match %s -> %s", m.Giver, m.Receiver)
			continue
		}
		if old, ok := e.matches[m.Giver]; ok {
			delete(taken, old)
		}
		e.matches[m.Giver] = m.Receiver
		e.committedAt[m.Giver] = m.Timestamp
		taken[m.Receiver] = true
	}
	for i := range e.participants {
		e.participants[i].HasReceivedMatch = taken[e.participants[i].Name]
	}

	e.recompute()
	logger.Infof("Loaded %d participants and %d matches", len(e.participants), len(e.matches))
	return e, nil
}

// RegisterParticipant adds a participant. The name is trimmed and must be
// unique among current participants regardless of case.
func (e *Engine) RegisterParticipant(name string) (models.Participant, error) {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return models.Participant{}, e.fail(ErrEmptyName)
	}
	if e.indexOf(cleaned) >= 0 {
		return models.Participant{}, e.fail(ErrDuplicateName)
	}

	p := models.Participant{ID: uuid.NewString(), Name: cleaned}
	e.participants = append(e.participants, p)
	e.lastErr = nil
	e.recompute()
	snap = e.persist(true, false)
	e.changed("register")
	return p, nil
}

// DeleteParticipant removes a participant together with every match in
// which they give or receive.
func (e *Engine) DeleteParticipant(name string) error {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOf(strings.TrimSpace(name))
	if idx < 0 {
		return e.fail(ErrUnknownParticipant)
	}
	target := e.participants[idx].Name

	if receiver, ok := e.matches[target]; ok {
		e.unmatch(target)
		logger.Infof("Removed match %s -> %s with deleted giver", target, receiver)
	}
	for giver, receiver := range e.matches {
		if receiver == target {
			e.unmatch(giver)
			logger.Infof("Removed match %s -> %s with deleted receiver", giver, receiver)
		}
	}

	e.participants = append(e.participants[:idx], e.participants[idx+1:]...)
	if e.pending != nil && (e.pending.Giver == target || e.pending.Receiver == target) {
		e.pending = nil
	}
	e.lastErr = nil
	e.recompute()
	snap = e.persist(true, true)
	e.changed("delete_participant")
	return nil
}

// AttemptMatch draws a random receiver for giver and holds it as the
// pending match. Matches and pools are untouched until ConfirmMatch.
func (e *Engine) AttemptMatch(giverName string) (models.PendingMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOf(strings.TrimSpace(giverName))
	if idx < 0 {
		return models.PendingMatch{}, e.fail(ErrUnknownParticipant)
	}
	giver := e.participants[idx].Name

	e.recompute()
	if !containsName(e.pools.AvailableGivers, giver) {
		return models.PendingMatch{}, e.fail(ErrGiverNotEligible)
	}

	candidates := EligibleReceivers(e.pools, giver)
	if len(candidates) == 0 {
		givers, receivers := e.pools.AvailableGivers, e.pools.AvailableReceivers
		if len(givers) == 1 && len(receivers) == 1 && receivers[0].Name == giver {
			e.needsReset = true
			e.changed("needs_reset")
		}
		return models.PendingMatch{}, e.fail(ErrNoEligibleReceivers)
	}

	receiver := candidates[e.rand.Intn(len(candidates))]
	e.pending = &models.PendingMatch{Giver: giver, Receiver: receiver.Name}
	e.lastErr = nil
	e.changed("attempt")
	return *e.pending, nil
}

// ConfirmMatch commits the pending match.
func (e *Engine) ConfirmMatch() (models.Match, error) {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return models.Match{}, e.fail(ErrNoPendingMatch)
	}
	pm := *e.pending

	if !containsName(e.pools.AvailableGivers, pm.Giver) || !containsName(EligibleReceivers(e.pools, pm.Giver), pm.Receiver) {
		e.pending = nil
		e.changed("cancel")
		return models.Match{}, e.fail(ErrStalePendingMatch)
	}

	e.participants[e.exactIndex(pm.Receiver)].HasReceivedMatch = true
	e.matches[pm.Giver] = pm.Receiver
	at := e.now()
	e.committedAt[pm.Giver] = at
	e.pending = nil
	e.lastErr = nil

	e.recompute()
	snap = e.persist(true, true)
	e.changed("confirm")
	return models.Match{Giver: pm.Giver, Receiver: pm.Receiver, Timestamp: at}, nil
}

// CancelMatch discards the pending match without touching anything else.
func (e *Engine) CancelMatch() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return e.fail(ErrNoPendingMatch)
	}
	e.pending = nil
	e.lastErr = nil
	e.changed("cancel")
	return nil
}

// DeleteMatch removes the committed match of giverName. The former
// receiver becomes eligible to receive again.
func (e *Engine) DeleteMatch(giverName string) error {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOf(strings.TrimSpace(giverName))
	if idx < 0 {
		return e.fail(ErrMatchNotFound)
	}
	giver := e.participants[idx].Name
	if _, ok := e.matches[giver]; !ok {
		return e.fail(ErrMatchNotFound)
	}

	e.unmatch(giver)
	e.lastErr = nil
	e.recompute()
	snap = e.persist(true, true)
	e.changed("delete_match")
	return nil
}

// ResetAll clears every match, the persisted match history, the pending
// draw and the needs-reset signal.
func (e *Engine) ResetAll() {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.matches = make(map[string]string)
	e.committedAt = make(map[string]time.Time)
	for i := range e.participants {
		e.participants[i].HasReceivedMatch = false
	}
	e.pending = nil
	e.needsReset = false
	e.lastErr = nil

	e.recompute()
	snap = e.persist(true, true)
	e.changed("reset")
}

// DeleteAllParticipants removes every participant and, with them, every
// match and any pending draw.
func (e *Engine) DeleteAllParticipants() {
	var snap *snapshot
	defer func() { e.flush(snap) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.participants = make([]models.Participant, 0)
	e.matches = make(map[string]string)
	e.committedAt = make(map[string]time.Time)
	e.pending = nil
	e.needsReset = false
	e.lastErr = nil

	e.recompute()
	snap = e.persist(true, true)
	e.changed("delete_all_participants")
}

// AcknowledgeReset clears the needs-reset signal without resetting.
func (e *Engine) AcknowledgeReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.needsReset {
		e.needsReset = false
		e.changed("acknowledge_reset")
	}
}

// CanMatch reports whether name has at least one receiver it could draw.
func (e *Engine) CanMatch(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx := e.indexOf(strings.TrimSpace(name))
	if idx < 0 {
		return false
	}
	return len(EligibleReceivers(e.pools, e.participants[idx].Name)) > 0
}

// Participants returns the participants in registration order.
func (e *Engine) Participants() []models.Participant {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Participant(nil), e.participants...)
}

// Pools returns a copy of the current giver and receiver pools.
func (e *Engine) Pools() models.Pools {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.Pools{
		AvailableGivers:    append([]models.Participant(nil), e.pools.AvailableGivers...),
		AvailableReceivers: append([]models.Participant(nil), e.pools.AvailableReceivers...),
	}
}

// Matches returns the match history ordered by commit time.
func (e *Engine) Matches() []models.Match {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history()
}

// Pending returns the pending match, if any.
func (e *Engine) Pending() (models.PendingMatch, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pending == nil {
		return models.PendingMatch{}, false
	}
	return *e.pending, true
}

// NeedsReset reports whether the last draw ended with only the giver left
// as a possible receiver.
func (e *Engine) NeedsReset() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.needsReset
}

// LastError returns the error of the most recent operation, or nil.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Version increments on every state change.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// IsGiver reports whether name has a committed match as giver.
func (e *Engine) IsGiver(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stored, ok := e.resolve(name)
	if !ok {
		return false
	}
	_, giver := e.matches[stored]
	return giver
}

// IsReceiver reports whether name is the receiver of a committed match.
func (e *Engine) IsReceiver(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stored, ok := e.resolve(name)
	return ok && e.isReceiver(stored)
}

// IsMatched reports whether name gives or receives in any committed match.
func (e *Engine) IsMatched(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stored, ok := e.resolve(name)
	if !ok {
		return false
	}
	_, giver := e.matches[stored]
	return giver || e.isReceiver(stored)
}

// Status summarises progress for display.
func (e *Engine) Status() models.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := models.Status{
		Remaining:  len(e.pools.AvailableGivers),
		Total:      len(e.participants),
		NeedsReset: e.needsReset,
	}
	switch {
	case st.Total == 0:
		st.Phase = models.PhaseEmpty
	case st.Total == 1:
		st.Phase = models.PhaseNeedMore
	case st.Remaining == 0:
		st.Phase = models.PhaseComplete
	default:
		st.Phase = models.PhaseDrawing
	}
	return st
}

// Export returns a snapshot of participants and match history.
func (e *Engine) Export() models.Backup {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.Backup{
		Participants: append([]models.Participant{}, e.participants...),
		Matches:      e.history(),
	}
}

// Subscribe returns a channel receiving an Event after each change and a
// func that unsubscribes and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// indexOf finds a participant by case-insensitive name.
func (e *Engine) indexOf(name string) int {
	for i, p := range e.participants {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// resolve maps any casing of a registered name to its stored spelling.
func (e *Engine) resolve(name string) (string, bool) {
	idx := e.indexOf(strings.TrimSpace(name))
	if idx < 0 {
		return "", false
	}
	return e.participants[idx].Name, true
}

func (e *Engine) exactIndex(name string) int {
	for i, p := range e.participants {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (e *Engine) isReceiver(name string) bool {
	for _, r := range e.matches {
		if r == name {
			return true
		}
	}
	return false
}

// unmatch drops giver's match and clears the receiver's flag.
func (e *Engine) unmatch(giver string) {
	receiver := e.matches[giver]
	delete(e.matches, giver)
	delete(e.committedAt, giver)
	if i := e.exactIndex(receiver); i >= 0 {
		e.participants[i].HasReceivedMatch = false
	}
}

func (e *Engine) recompute() {
	e.pools = DerivePools(e.participants, e.matches)
}

func (e *Engine) history() []models.Match {
	list := make([]models.Match, 0, len(e.matches))
	for giver, receiver := range e.matches {
		list = append(list, models.Match{Giver: giver, Receiver: receiver, Timestamp: e.committedAt[giver]})
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.Before(list[j].Timestamp)
		}
		return list[i].Giver < list[j].Giver
	})
	return list
}

func (e *Engine) fail(err error) error {
	e.lastErr = err
	return err
}

func (e *Engine) changed(op string) {
	e.version++
	e.events.publish(Event{Op: op, Version: e.version})
}

// snapshot is the state to write after a mutation, taken under mu.
type snapshot struct {
	seq          uint64
	wantP, wantM uint64
	participants []models.Participant
	matches      []models.Match
}

// persist records which records the current mutation changed and returns a
// copy of the state for flush. Must be called with mu held.
func (e *Engine) persist(participants, matches bool) *snapshot {
	if e.store == nil {
		return nil
	}
	e.seq++
	if participants {
		e.wantSaveP = e.seq
	}
	if matches {
		e.wantSaveM = e.seq
	}
	return &snapshot{
		seq:          e.seq,
		wantP:        e.wantSaveP,
		wantM:        e.wantSaveM,
		participants: append([]models.Participant{}, e.participants...),
		matches:      e.history(),
	}
}

// flush writes a snapshot without holding mu, so reads are never blocked on
// the store. A record is written only when it has an unsaved change and no
// newer snapshot has already been written for it; a failed write stays
// unsaved and goes out with the next snapshot. Failures are logged and
// in-memory state stays authoritative.
func (e *Engine) flush(snap *snapshot) {
	if snap == nil {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if snap.wantP > e.savedSeqP && snap.seq > e.savedSeqP {
		if err := e.store.SaveParticipants(ctx, snap.participants); err != nil {
			logger.Errorf("Error saving participants: %v", err)
		} else {
			e.savedSeqP = snap.seq
		}
	}
	if snap.wantM > e.savedSeqM && snap.seq > e.savedSeqM {
		if err := e.store.SaveMatches(ctx, snap.matches); err != nil {
			logger.Errorf("Error saving matches: %v", err)
		} else {
			e.savedSeqM = snap.seq
		}
	}
}
