package services

import "sync"

// ===========================================================================
// Keyed Mutex
// Serialize các thao tác get-or-create / append theo một key logic
// (tenant+remote_address cho identity, chat_id cho append)
// Mutex chỉ tồn tại khi có goroutine giữ hoặc chờ, tránh map lớn dần vô hạn
// ===========================================================================

// KeyedMutex cấp phát mutex theo key
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock một mutex kèm số goroutine đang giữ/chờ
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex tạo KeyedMutex mới
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock giữ mutex cho key, trả về hàm unlock
//
//	unlock := km.Lock("tenant:628123")
//	defer unlock()
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
