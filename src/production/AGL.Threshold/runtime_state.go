package threshold

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

const shardCount = 32

// stateKey identifies one threshold's runtime state.
func stateKey(deviceID string, sensorType aglmodels.SensorType, level aglmodels.ThresholdLevel, typ aglmodels.ThresholdType) string {
	return fmt.Sprintf("%s|%s|%s|%s", deviceID, sensorType, level, typ)
}

type thresholdState struct {
	latched      bool
	lastDispatch time.Time
}

type stateShard struct {
	mu     sync.Mutex
	states map[string]*thresholdState
}

// runtimeState holds the in-memory latch and cooldown bookkeeping for every
// (device, sensorType, level, type) key. State is process-local: a restart
// clears all latches and cooldowns, which is an accepted failure mode.
//
// Keys are sharded so evaluations for different thresholds proceed
// independently while check-and-set for the same key stays atomic.
type runtimeState struct {
	shards   [shardCount]stateShard
	cooldown time.Duration
	now      func() time.Time
}

func newRuntimeState(cooldown time.Duration) *runtimeState {
	rs := &runtimeState{cooldown: cooldown, now: time.Now}
	for i := range rs.shards {
		rs.shards[i].states = map[string]*thresholdState{}
	}
	return rs
}

func (rs *runtimeState) shard(key string) *stateShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &rs.shards[h.Sum32()%shardCount]
}

// TryAcquire passes the anti-spam gate for the key: it fails when the latch
// is set or the cooldown window has not elapsed; otherwise it sets the latch
// and refreshes the dispatch timestamp in the same critical section.
func (rs *runtimeState) TryAcquire(key string) bool {
	s := rs.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		st = &thresholdState{}
		s.states[key] = st
	}
	now := rs.now()
	if st.latched || now.Sub(st.lastDispatch) < rs.cooldown {
		return false
	}
	st.latched = true
	st.lastDispatch = now
	return true
}

// Clear drops the latch for the key, allowing a future violation to alert
// again. The cooldown timestamp is kept: recovery does not shortcut the
// minimum interval between dispatches.
func (rs *runtimeState) Clear(key string) {
	s := rs.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[key]; ok {
		st.latched = false
	}
}

// Latched reports the latch flag for the key.
func (rs *runtimeState) Latched(key string) bool {
	s := rs.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return ok && st.latched
}
