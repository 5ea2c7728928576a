// Package session gates list fetching on the presence of an authenticated
// identity and re-keys every open list when that identity changes.
package session

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zfogg/feedline/pkg/credentials"
	"github.com/zfogg/feedline/pkg/logger"
)

// Provider exposes the current session token and announces changes to it.
// An empty token passed to a subscriber means the session ended.
type Provider interface {
	CurrentToken() (string, bool)
	Subscribe(fn func(token string)) (cancel func())
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(string)
}

func (l *listeners) add(fn func(string)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(string))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// notify calls subscribers in subscription order, outside the lock.
func (l *listeners) notify(token string) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(token)
	}
}

// StaticProvider holds a token in memory. Set and Revoke notify
// subscribers synchronously.
type StaticProvider struct {
	mu    sync.Mutex
	token string
	subs  listeners
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) CurrentToken() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, p.token != ""
}

func (p *StaticProvider) Subscribe(fn func(string)) func() {
	return p.subs.add(fn)
}

// Set replaces the token. Setting the current token is a no-op.
func (p *StaticProvider) Set(token string) {
	p.mu.Lock()
	if p.token == token {
		p.mu.Unlock()
		return
	}
	p.token = token
	p.mu.Unlock()

	p.subs.notify(token)
}

// Revoke ends the session.
func (p *StaticProvider) Revoke() {
	p.Set("")
}

const credentialsReloadDelay = 100 * time.Millisecond

// FileProvider reads the token from a credentials file and follows changes
// to it, such as a login or logout from another process.
type FileProvider struct {
	path string
	w    *fsnotify.Watcher
	wg   sync.WaitGroup

	mu    sync.Mutex
	token string
	subs  listeners
}

func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.load(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	absPath := filepath.Join(dir, filepath.Base(path))
	p.w = w

	timer := time.NewTimer(math.MaxInt64)
	timer.Stop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}
				if event.Name == absPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
					timer.Reset(credentialsReloadDelay)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Credentials watcher error", "path", path, "error", err)

			case <-timer.C:
				p.Reload()
			}
		}
	}()

	return p, nil
}

func (p *FileProvider) load() error {
	creds, err := credentials.LoadFrom(p.path)
	if err != nil {
		return err
	}
	token, _ := creds.Token()

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	return nil
}

// Reload re-reads the credentials file now instead of waiting for the
// watcher, notifying subscribers when the token changed.
func (p *FileProvider) Reload() {
	// An empty file is most likely a write in progress.
	if info, err := os.Stat(p.path); err == nil && info.Size() == 0 {
		return
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to stat credentials", "path", p.path, "error", err)
		return
	}

	creds, err := credentials.LoadFrom(p.path)
	if err != nil {
		logger.Warn("Failed to reload credentials", "path", p.path, "error", err)
		return
	}
	token, _ := creds.Token()

	p.mu.Lock()
	if token == p.token {
		p.mu.Unlock()
		return
	}
	p.token = token
	p.mu.Unlock()

	logger.Info("Credentials changed", "path", p.path, "signed_in", token != "")
	p.subs.notify(token)
}

func (p *FileProvider) CurrentToken() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, p.token != ""
}

func (p *FileProvider) Subscribe(fn func(string)) func() {
	return p.subs.add(fn)
}

// Close stops watching the file.
func (p *FileProvider) Close() {
	p.w.Close()
	p.wg.Wait()
}
