package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"
)

// DiskStore writes one JSON file per presentation plus an index, keeping
// the most recently used presentations in memory.
type DiskStore struct {
	dataDir   string
	mu        sync.RWMutex
	index     map[string]*PresentationIndex
	cache     map[string]*cacheEntry
	cacheSize int
	seq       uint64
	published []*model.Presentation
	notifier  *notifier
}

type PresentationIndex struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Style     string    `json:"style"`
	Slides    int       `json:"slides"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cacheEntry struct {
	presentation *model.Presentation
	usedAt       time.Time
}

func NewDiskStore(dataDir string, cacheSize int) *DiskStore {
	if cacheSize <= 0 {
		cacheSize = 20
	}
	return &DiskStore{
		dataDir:   dataDir,
		index:     make(map[string]*PresentationIndex),
		cache:     make(map[string]*cacheEntry),
		cacheSize: cacheSize,
		notifier:  newNotifier(),
	}
}

func (d *DiskStore) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	for _, id := range d.sortedIDs() {
		if len(d.cache) >= d.cacheSize {
			break
		}
		p, err := d.loadFromFile(id)
		if err != nil {
			logger.Errorf("Failed to load presentation %s: %v", id, err)
			continue
		}
		d.cache[id] = &cacheEntry{presentation: p, usedAt: time.Now()}
	}

	logger.Infof("Disk storage initialized at %s with %d presentations", d.dataDir, len(d.index))
	return nil
}

func (d *DiskStore) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "presentations"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiskStore) indexPath() string {
	return filepath.Join(d.dataDir, "presentations.json")
}

// presentationPath encodes the id since timestamp ids contain colons.
func (d *DiskStore) presentationPath(id string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(id)) + ".json"
	return filepath.Join(d.dataDir, "presentations", name)
}

func (d *DiskStore) loadIndex() error {
	data, err := os.ReadFile(d.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return d.saveIndex()
	}
	if err != nil {
		return err
	}

	var entries []*PresentationIndex
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	d.index = make(map[string]*PresentationIndex, len(entries))
	for _, e := range entries {
		d.index[e.ID] = e
	}
	return nil
}

func (d *DiskStore) saveIndex() error {
	entries := make([]*PresentationIndex, 0, len(d.index))
	for _, id := range d.sortedIDs() {
		entries = append(entries, d.index[id])
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(d.indexPath(), data)
}

func (d *DiskStore) loadFromFile(id string) (*model.Presentation, error) {
	data, err := os.ReadFile(d.presentationPath(id))
	if err != nil {
		return nil, err
	}

	var p model.Presentation
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &p, nil
}

func (d *DiskStore) saveToFile(p *model.Presentation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.presentationPath(p.ID), data)
}

func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func (d *DiskStore) Append(ctx context.Context, p *model.Presentation) error {
	d.mu.Lock()
	if _, exists := d.index[p.ID]; exists {
		d.mu.Unlock()
		return ErrPresentationExists
	}
	saved, err := d.write(p)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	seq, list := d.changed(func(list []*model.Presentation) []*model.Presentation {
		return upsert(list, saved)
	})
	d.mu.Unlock()

	d.notifier.publish(seq, list)
	return nil
}

func (d *DiskStore) Update(ctx context.Context, p *model.Presentation) error {
	d.mu.Lock()
	if _, exists := d.index[p.ID]; !exists {
		d.mu.Unlock()
		return ErrPresentationNotFound
	}
	saved, err := d.write(p)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	seq, list := d.changed(func(list []*model.Presentation) []*model.Presentation {
		return upsert(list, saved)
	})
	d.mu.Unlock()

	d.notifier.publish(seq, list)
	return nil
}

// write persists p and refreshes index and cache; the caller holds the write
// lock. If the index cannot be written, file and index entry are rolled back.
func (d *DiskStore) write(p *model.Presentation) (*model.Presentation, error) {
	p = p.Clone()
	path := d.presentationPath(p.ID)

	prevEntry, existed := d.index[p.ID]
	var prevData []byte
	if existed {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		prevData = data
	}

	if err := d.saveToFile(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.index[p.ID] = &PresentationIndex{
		ID:        p.ID,
		Topic:     p.Topic,
		Style:     p.Style.Name,
		Slides:    len(p.Slides),
		UpdatedAt: time.Now(),
	}
	if err := d.saveIndex(); err != nil {
		d.rollback(p.ID, prevEntry, prevData)
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[p.ID] = &cacheEntry{presentation: p, usedAt: time.Now()}
	d.evictCache()
	return p, nil
}

// rollback restores the index entry and file that preceded a failed write.
func (d *DiskStore) rollback(id string, prevEntry *PresentationIndex, prevData []byte) {
	path := d.presentationPath(id)
	if prevEntry == nil {
		delete(d.index, id)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Errorf("Failed to remove orphan presentation file %s: %v", path, err)
		}
		return
	}

	d.index[id] = prevEntry
	if prevData == nil {
		return
	}
	if err := writeFileAtomic(path, prevData); err != nil {
		logger.Errorf("Failed to restore presentation file %s: %v", path, err)
	}
}

func (d *DiskStore) Get(ctx context.Context, id string) (*model.Presentation, error) {
	d.mu.RLock()
	if _, exists := d.index[id]; !exists {
		d.mu.RUnlock()
		return nil, ErrPresentationNotFound
	}
	if entry, ok := d.cache[id]; ok {
		p := entry.presentation.Clone()
		d.mu.RUnlock()
		return p, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.load(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// load returns the cached or on-disk presentation; the caller holds the write lock.
func (d *DiskStore) load(id string) (*model.Presentation, error) {
	if entry, ok := d.cache[id]; ok {
		entry.usedAt = time.Now()
		return entry.presentation, nil
	}

	p, err := d.loadFromFile(id)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPresentationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[id] = &cacheEntry{presentation: p, usedAt: time.Now()}
	d.evictCache()
	return p, nil
}

func (d *DiskStore) List(ctx context.Context) ([]*model.Presentation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return cloneList(d.listLocked()), nil
}

func (d *DiskStore) listLocked() []*model.Presentation {
	ids := d.sortedIDs()
	list := make([]*model.Presentation, 0, len(ids))
	for _, id := range ids {
		p, err := d.load(id)
		if err != nil {
			logger.Errorf("Failed to load presentation %s: %v", id, err)
			continue
		}
		list = append(list, p)
	}
	return list
}

// Clear backs the current history up before removing it.
func (d *DiskStore) Clear(ctx context.Context) error {
	d.mu.Lock()
	if len(d.index) > 0 {
		if err := d.backup(); err != nil {
			d.mu.Unlock()
			return err
		}
	}

	for id := range d.index {
		if err := os.Remove(d.presentationPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}
	d.index = make(map[string]*PresentationIndex)
	d.cache = make(map[string]*cacheEntry)
	if err := d.saveIndex(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	seq, list := d.changed(func([]*model.Presentation) []*model.Presentation {
		return []*model.Presentation{}
	})
	d.mu.Unlock()

	d.notifier.publish(seq, list)
	return nil
}

// Subscribe registers under the store lock so no change can slip between the
// initial list and the registration.
func (d *DiskStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.published = d.listLocked()
	return d.notifier.subscribe(ctx, d.seq, d.published, fn), nil
}

// changed bumps the sequence and derives the list to publish from the last
// published one, so writes never re-read the history from disk. Nothing is
// built while nobody listens. The caller holds the write lock.
func (d *DiskStore) changed(apply func([]*model.Presentation) []*model.Presentation) (uint64, []*model.Presentation) {
	d.seq++
	if d.notifier.count() == 0 {
		d.published = nil
		return d.seq, nil
	}
	if d.published == nil {
		d.published = d.listLocked()
	} else {
		d.published = apply(d.published)
	}
	return d.seq, d.published
}

// upsert returns a new newest-first list with p replacing any entry with its id.
func upsert(list []*model.Presentation, p *model.Presentation) []*model.Presentation {
	out := make([]*model.Presentation, 0, len(list)+1)
	for _, e := range list {
		if e.ID != p.ID {
			out = append(out, e)
		}
	}
	out = append(out, p)
	sortNewestFirst(out)
	return out
}

func (d *DiskStore) sortedIDs() []string {
	ids := make([]string, 0, len(d.index))
	for id := range d.index {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids
}

func (d *DiskStore) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type usage struct {
		id     string
		usedAt time.Time
	}

	entries := make([]usage, 0, len(d.cache))
	for id, entry := range d.cache {
		entries = append(entries, usage{id: id, usedAt: entry.usedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].usedAt.Before(entries[j].usedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*cacheEntry)
	d.published = nil
	d.notifier.reset()
	return nil
}

// backup copies presentations and index into a timestamped directory.
func (d *DiskStore) backup() error {
	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))
	dstDir := filepath.Join(backupDir, "presentations")

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	for id := range d.index {
		src := d.presentationPath(id)
		err := copyFile(src, filepath.Join(dstDir, filepath.Base(src)))
		if errors.Is(err, os.ErrNotExist) {
			logger.Warnf("Skipping missing presentation %s in backup", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	if err := copyFile(d.indexPath(), filepath.Join(backupDir, "presentations.json")); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
