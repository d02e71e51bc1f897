package session

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

const managerShards = 64

// Manager хранит живые сессии в памяти и сериализует обработку событий
// по актору: пока fn работает с сессией, параллельные события того же
// актора ждут на её мьютексе. Разные акторы друг друга не блокируют.
type Manager struct {
	shards [managerShards]managerShard
	now    func() time.Time
}

type managerShard struct {
	mu       sync.Mutex
	sessions map[int64]*lockedSession
}

type lockedSession struct {
	mu   sync.Mutex
	sess Session
}

// NewManager создаёт пустой менеджер сессий.
func NewManager() *Manager {
	m := &Manager{now: time.Now}
	for i := range m.shards {
		m.shards[i].sessions = make(map[int64]*lockedSession)
	}
	return m
}

func (m *Manager) shard(actorID int64) *managerShard {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(actorID, 10)))
	return &m.shards[h.Sum32()%managerShards]
}

func (m *Manager) entry(actorID int64) *lockedSession {
	sh := m.shard(actorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	ls, ok := sh.sessions[actorID]
	if !ok {
		ls = &lockedSession{sess: Session{ActorID: actorID}}
		sh.sessions[actorID] = ls
	}
	return ls
}

// Do выполняет fn под мьютексом сессии актора. Сессия создаётся при
// первом обращении; fn видит State == "" если диалог не начат.
func (m *Manager) Do(actorID int64, fn func(sess *Session) error) error {
	ls := m.entry(actorID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	err := fn(&ls.sess)
	ls.sess.LastActivity = m.now()
	return err
}

// Drop удаляет сессию актора из памяти. Черновик в хранилище не трогает.
func (m *Manager) Drop(actorID int64) {
	sh := m.shard(actorID)
	sh.mu.Lock()
	delete(sh.sessions, actorID)
	sh.mu.Unlock()
}

// DropIdle удаляет из памяти сессии без активности дольше maxIdle.
// Вызывается фоновой уборкой вместе с чисткой черновиков.
func (m *Manager) DropIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	var dropped int
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for id, ls := range sh.sessions {
			if ls.mu.TryLock() {
				if ls.sess.LastActivity.Before(cutoff) {
					delete(sh.sessions, id)
					dropped++
				}
				ls.mu.Unlock()
			}
		}
		sh.mu.Unlock()
	}
	return dropped
}
