// This file implements a concurrent skip list with augmented span counts
// for O(log n) rank queries - the crypto leaderboard sits on top of it.
//
// Origin: Pugh (1990), "Skip Lists: A Probabilistic Alternative to Balanced Trees"
// Redis ZSET uses this exact pattern for leaderboards.

package spatial

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

const (
	maxLevel         = 32   // Max skip list height (supports 2^32 elements)
	levelProbability = 0.25 // P=0.25 gives optimal balance
)

// SkipListEntry represents a scored entry in the leaderboard.
type SkipListEntry struct {
	Key   string  // Player ID
	Score float64 // Crypto balance, kills, or any ranking score
}

// skipNode is a node in the skip list
type skipNode struct {
	entry SkipListEntry
	next  []*skipNode // Forward pointers (one per level)
	span  []int       // Span counts (distance to next node at each level)
}

// SkipList is a concurrent skip list ordered by score descending (ties by
// key ascending). A side map from key to current score makes key-only
// operations (Remove, GetRank) find the node through the score comparator,
// the same trick Redis uses with its dict+zskiplist pair.
type SkipList struct {
	head   *skipNode
	scores map[string]float64
	level  int32
	length int32
	mu     sync.RWMutex
	rng    *rand.Rand
}

// NewSkipList creates a new concurrent skip list.
func NewSkipList() *SkipList {
	return &SkipList{
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
			span: make([]int, maxLevel),
		},
		scores: make(map[string]float64),
		level:  1,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// randomLevel generates a random level for a new node.
// Returns level in range [1, maxLevel] with geometric distribution.
func (sl *SkipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// before reports whether a node with (score, key) sorts before the probe
// entry: higher scores first, equal scores ordered by key.
func before(e SkipListEntry, score float64, key string) bool {
	return e.Score > score || (e.Score == score && e.Key < key)
}

// findUpdate fills update with the rightmost node before (score, key) at
// each level and returns the rank walked so far per level.
// Caller must hold mu.
func (sl *SkipList) findUpdate(score float64, key string, update []*skipNode, rank []int) {
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		if i == int(sl.level)-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && before(x.next[i].entry, score, key) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}
}

// Insert adds or updates an entry.
// If key already exists, updates the score and repositions.
// Time complexity: O(log n) average.
func (sl *SkipList) Insert(key string, score float64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	update := make([]*skipNode, maxLevel)
	rank := make([]int, maxLevel)

	if old, ok := sl.scores[key]; ok {
		sl.findUpdate(old, key, update, rank)
		if node := update[0].next[0]; node != nil && node.entry.Key == key {
			sl.removeNode(node, update)
		}
	}

	sl.findUpdate(score, key, update, rank)

	newLevel := sl.randomLevel()
	if newLevel > int(sl.level) {
		for i := int(sl.level); i < newLevel; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = int(sl.length)
		}
		atomic.StoreInt32(&sl.level, int32(newLevel))
	}

	node := &skipNode{
		entry: SkipListEntry{Key: key, Score: score},
		next:  make([]*skipNode, newLevel),
		span:  make([]int, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	for i := newLevel; i < int(sl.level); i++ {
		update[i].span[i]++
	}

	sl.scores[key] = score
	atomic.AddInt32(&sl.length, 1)
}

// Remove removes an entry by key.
// Time complexity: O(log n) average.
func (sl *SkipList) Remove(key string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	score, ok := sl.scores[key]
	if !ok {
		return false
	}

	update := make([]*skipNode, maxLevel)
	rank := make([]int, maxLevel)
	sl.findUpdate(score, key, update, rank)

	node := update[0].next[0]
	if node == nil || node.entry.Key != key {
		return false
	}
	sl.removeNode(node, update)
	delete(sl.scores, key)
	return true
}

// removeNode unlinks a node given its update path.
// Caller must hold mu.
func (sl *SkipList) removeNode(node *skipNode, update []*skipNode) {
	for i := 0; i < int(sl.level); i++ {
		if update[i].next[i] == node {
			update[i].span[i] += node.span[i] - 1
			update[i].next[i] = node.next[i]
		} else {
			update[i].span[i]--
		}
	}

	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		atomic.AddInt32(&sl.level, -1)
	}
	atomic.AddInt32(&sl.length, -1)
}

// GetRank returns the rank of a key (1-indexed, 1 = highest score).
// Returns 0 if key not found.
// Time complexity: O(log n)
func (sl *SkipList) GetRank(key string) int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	score, ok := sl.scores[key]
	if !ok {
		return 0
	}

	rank := 0
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && before(x.next[i].entry, score, key) {
			rank += x.span[i]
			x = x.next[i]
		}
	}
	if x.next[0] != nil && x.next[0].entry.Key == key {
		return rank + 1
	}
	return 0
}

// GetByRank returns the entry at a given rank (1-indexed).
// Time complexity: O(log n)
func (sl *SkipList) GetByRank(rank int) *SkipListEntry {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if rank <= 0 || rank > int(sl.length) {
		return nil
	}

	traversed := 0
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] <= rank {
			traversed += x.span[i]
			x = x.next[i]
		}
		if traversed == rank {
			entry := x.entry
			return &entry
		}
	}
	return nil
}

// GetRange returns entries in rank range [start, end] (1-indexed, inclusive).
// Time complexity: O(log n + k) where k is range size.
func (sl *SkipList) GetRange(start, end int) []SkipListEntry {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if start <= 0 {
		start = 1
	}
	if end > int(sl.length) {
		end = int(sl.length)
	}
	if start > end {
		return nil
	}

	result := make([]SkipListEntry, 0, end-start+1)

	traversed := 0
	x := sl.head
	for i := int(sl.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	x = x.next[0]
	for x != nil && traversed < end {
		traversed++
		if traversed >= start {
			result = append(result, x.entry)
		}
		x = x.next[0]
	}
	return result
}

// GetScore returns the score for a key.
// Returns (score, true) if found, (0, false) if not.
func (sl *SkipList) GetScore(key string) (float64, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	score, ok := sl.scores[key]
	return score, ok
}

// Length returns the number of entries.
func (sl *SkipList) Length() int {
	return int(atomic.LoadInt32(&sl.length))
}

// Clear removes all entries.
func (sl *SkipList) Clear() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for i := range sl.head.next {
		sl.head.next[i] = nil
		sl.head.span[i] = 0
	}
	sl.scores = make(map[string]float64)
	atomic.StoreInt32(&sl.level, 1)
	atomic.StoreInt32(&sl.length, 0)
}

// ForEach iterates over all entries in rank order (highest score first).
// Time complexity: O(n)
func (sl *SkipList) ForEach(fn func(rank int, entry SkipListEntry) bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	rank := 0
	x := sl.head.next[0]
	for x != nil {
		rank++
		if !fn(rank, x.entry) {
			break
		}
		x = x.next[0]
	}
}
