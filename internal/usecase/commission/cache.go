package commission

import "sync"

// IndexCache хранит загруженные справочники по пути к файлу.
type IndexCache struct {
	mu      sync.Mutex
	load    func(path string) (*Index, error)
	entries map[string]*Index
}

// NewIndexCache создаёт кэш, читающий файлы через LoadFile.
func NewIndexCache() *IndexCache {
	return &IndexCache{load: LoadFile, entries: make(map[string]*Index)}
}

// Get возвращает справочник, загружая его при первом обращении.
// Ошибка загрузки не кэшируется.
func (c *IndexCache) Get(path string) (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.entries[path]; ok {
		return idx, nil
	}
	idx, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = idx
	return idx, nil
}

// Invalidate сбрасывает справочник после повторной загрузки или удаления файла.
func (c *IndexCache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}
