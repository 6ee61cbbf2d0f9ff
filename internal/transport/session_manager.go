package transport

import (
	"sort"
	"sync"
	"sync/atomic"
)

// SessionManager 会话管理器
type SessionManager struct {
	sync.Map // key: id string, value: *Session
	count    int64
}

// NewSessionManager 创建会话管理器
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Add 注册会话；同一 id 重复注册只计数一次
func (sm *SessionManager) Add(s *Session) *Session {
	if s == nil {
		return nil
	}
	if _, loaded := sm.Swap(s.ID(), s); !loaded {
		atomic.AddInt64(&sm.count, 1)
	}
	return s
}

// Remove 移除会话，返回是否确实移除了
func (sm *SessionManager) Remove(id string) bool {
	if _, loaded := sm.LoadAndDelete(id); loaded {
		atomic.AddInt64(&sm.count, -1)
		return true
	}
	return false
}

// Count 获取当前会话数量
func (sm *SessionManager) Count() int64 {
	return atomic.LoadInt64(&sm.count)
}

// Get 获取会话
func (sm *SessionManager) Get(id string) (*Session, bool) {
	v, exists := sm.Load(id)
	if !exists {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// GetAll 获取所有会话
func (sm *SessionManager) GetAll() []*Session {
	out := make([]*Session, 0)
	sm.Range(func(key, value any) bool {
		if s, ok := value.(*Session); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

// IDs returns the ids of all registered sessions, sorted.
func (sm *SessionManager) IDs() []string {
	ids := make([]string, 0)
	sm.Range(func(key, value any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Clear 移除全部会话并返回它们
func (sm *SessionManager) Clear() []*Session {
	var out []*Session
	sm.Range(func(key, value any) bool {
		if sm.Remove(key.(string)) {
			if s, ok := value.(*Session); ok {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}
