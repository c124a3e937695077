package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Each level keeps its own treap. "less" means ranks earlier, so an
// in-order traversal yields the leaderboard from best to worst:
// score DESC, then submittedAt ASC, then id ASC.

const numLevels = model.MaxLevel + 1

// rankKey is the ordering key of a record inside its level's treap.
type rankKey struct {
	score int
	at    int64
	id    uint64
}

func keyOf(r *model.ScoreRecord) rankKey {
	return rankKey{score: r.Score, at: r.SubmittedAt.UnixNano(), id: r.ID}
}

// less returns true if a should appear before b in the leaderboard.
func less(a, b rankKey) bool {
	if a.score != b.score {
		return a.score > b.score // higher score ranks earlier
	}
	if a.at != b.at {
		return a.at < b.at // earlier submission wins ties
	}
	return a.id < b.id
}

// treap node
type node struct {
	key   rankKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k rankKey) *node {
	if n == nil {
		return &node{key: k, prio: rand.Uint64(), size: 1}
	}
	if less(k, n.key) {
		n.left = insert(n.left, k)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k rankKey) *node {
	if n == nil {
		return nil
	}
	if k == n.key {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	} else if less(k, n.key) {
		n.left = deleteNode(n.left, k)
	} else {
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// collect appends records in rank order.
func collect(n *node, byID map[uint64]*model.ScoreRecord, out *[]model.ScoreRecord) {
	if n == nil {
		return
	}
	collect(n.left, byID, out)
	if rec, ok := byID[n.key.id]; ok {
		*out = append(*out, *rec)
	}
	collect(n.right, byID, out)
}

// playerLock serializes WithinPlayer calls for one key.
type playerLock struct {
	mu   sync.Mutex
	refs int
}

// MemoryStore keeps all records in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	levels   [numLevels]*node
	byID     map[uint64]*model.ScoreRecord
	byPlayer map[string]map[int]uint64
	nextID   atomic.Uint64
	closed   atomic.Bool
	// epoch advances on every ClearAll, guarded by mu.
	epoch uint64

	locksMu sync.Mutex
	locks   map[string]*playerLock

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

// NewMemoryStore constructs an in-memory store with configuration options.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[uint64]*model.ScoreRecord),
		byPlayer:              make(map[string]map[int]uint64),
		locks:                 make(map[string]*playerLock),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) lockPlayer(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &playerLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}

// WithinPlayer implements Store.WithinPlayer with a per-player lock. Writes
// are staged and applied under the index write lock only if fn succeeds.
func (s *MemoryStore) WithinPlayer(ctx context.Context, playerKey string, fn func(tx PlayerTx) error) error {
	if playerKey == "" {
		return ErrInvalidKey
	}
	if s.closed.Load() {
		return ErrUnavailable
	}
	defer observe("within_player", time.Now())

	unlock := s.lockPlayer(playerKey)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	tx := &memTx{store: s, key: playerKey, staged: make(map[int]model.ScoreRecord)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(playerKey, epoch, tx.staged)
}

// commit applies staged writes read at epoch. A ClearAll since then makes
// those reads stale and the commit fails with ErrConflict.
func (s *MemoryStore) commit(playerKey string, epoch uint64, staged map[int]model.ScoreRecord) error {
	if len(staged) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return fmt.Errorf("commit %s: cleared during transaction: %w", playerKey, ErrConflict)
	}

	levels, ok := s.byPlayer[playerKey]
	if !ok {
		levels = make(map[int]uint64, numLevels)
		s.byPlayer[playerKey] = levels
	}
	for level, rec := range staged {
		if old, ok := s.byID[rec.ID]; ok {
			s.levels[level] = deleteNode(s.levels[level], keyOf(old))
		}
		stored := rec
		s.byID[rec.ID] = &stored
		levels[level] = rec.ID
		s.levels[level] = insert(s.levels[level], keyOf(&stored))
	}
	return nil
}

// committed returns the player's stored record at level.
func (s *MemoryStore) committed(playerKey string, level int) (model.ScoreRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPlayer[playerKey][level]
	if !ok {
		return model.ScoreRecord{}, false
	}
	return *s.byID[id], true
}

// RankLevel implements Store.RankLevel with an in-order treap walk.
func (s *MemoryStore) RankLevel(ctx context.Context, level int) ([]model.ScoreRecord, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	if level < 0 || level >= numLevels {
		return []model.ScoreRecord{}, nil
	}
	defer observe("rank_level", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScoreRecord, 0, nsize(s.levels[level]))
	collect(s.levels[level], s.byID, &out)
	return out, ctx.Err()
}

// ListAll implements Store.ListAll.
func (s *MemoryStore) ListAll(ctx context.Context) ([]model.ScoreRecord, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	defer observe("list_all", time.Now())

	s.mu.RLock()
	out := make([]model.ScoreRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, *rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.ScoreRecord) int {
		if c := strings.Compare(a.PlayerName, b.PlayerName); c != 0 {
			return c
		}
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, ctx.Err()
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, id uint64) (model.ScoreRecord, error) {
	if s.closed.Load() {
		return model.ScoreRecord{}, ErrUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return model.ScoreRecord{}, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return *rec, nil
}

// ClearAll implements Store.ClearAll. Identities are not reused afterwards.
func (s *MemoryStore) ClearAll(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrUnavailable
	}
	defer observe("clear_all", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.byID))
	s.epoch++
	s.levels = [numLevels]*node{}
	s.byID = make(map[uint64]*model.ScoreRecord)
	s.byPlayer = make(map[string]map[int]uint64)
	return n, nil
}

// Stats implements Store.Stats.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Records: int64(len(s.byID)), Players: int64(len(s.byPlayer))}, nil
}

// Ping implements Store.Ping.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	return ctx.Err()
}

// Close stops the metrics updater. Later calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater starts a background goroutine that updates store metrics.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	records, players := len(s.byID), len(s.byPlayer)
	s.mu.RUnlock()
	metrics.UpdateStoreRecords(int64(records))
	metrics.UpdateStorePlayers(int64(players))
}

// memTx stages writes for one MemoryStore.WithinPlayer call.
type memTx struct {
	store  *MemoryStore
	key    string
	staged map[int]model.ScoreRecord
}

func (t *memTx) lookup(level int) (model.ScoreRecord, bool) {
	if rec, ok := t.staged[level]; ok {
		return rec, true
	}
	return t.store.committed(t.key, level)
}

func (t *memTx) Get(ctx context.Context, level int) (model.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreRecord{}, err
	}
	rec, ok := t.lookup(level)
	if !ok {
		return model.ScoreRecord{}, ErrNotFound
	}
	return rec, nil
}

func (t *memTx) Levels(ctx context.Context, from, to int) ([]model.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.ScoreRecord
	for level := max(from, 0); level <= to && level < numLevels; level++ {
		if rec, ok := t.lookup(level); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *memTx) Sum(ctx context.Context, from, to int) (int, error) {
	recs, err := t.Levels(ctx, from, to)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range recs {
		total += r.Score
	}
	return total, nil
}

func (t *memTx) Insert(ctx context.Context, rec *model.ScoreRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Level < 0 || rec.Level >= numLevels {
		return fmt.Errorf("insert level %d: %w", rec.Level, ErrInvalidKey)
	}
	if _, ok := t.lookup(rec.Level); ok {
		return fmt.Errorf("insert level %d: %w", rec.Level, ErrConflict)
	}
	rec.PlayerKey = t.key
	rec.ID = t.store.nextID.Add(1)
	t.staged[rec.Level] = *rec
	return nil
}

func (t *memTx) Update(ctx context.Context, rec model.ScoreRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := t.lookup(rec.Level)
	if !ok || cur.ID != rec.ID {
		return ErrNotFound
	}
	cur.Score = rec.Score
	cur.SubmittedAt = rec.SubmittedAt
	t.staged[rec.Level] = cur
	return nil
}

func (t *memTx) Upsert(ctx context.Context, rec *model.ScoreRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := t.lookup(rec.Level)
	if !ok {
		return t.Insert(ctx, rec)
	}
	cur.Score = rec.Score
	cur.SubmittedAt = rec.SubmittedAt
	t.staged[rec.Level] = cur
	*rec = cur
	return nil
}
