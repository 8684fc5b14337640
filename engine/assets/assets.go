package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/revolution/engine/core"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type ShaderKind int

const (
	ShaderKindNone ShaderKind = iota
	ShaderKindSPIRV
	ShaderKindGLSL
	ShaderKindEffect
)

type ShaderInfo struct {
	Path       string
	Kind       ShaderKind
	LastLoaded time.Time
}

// ReloadFunc is called with the path of a shader that was created or modified.
type ReloadFunc func(path string)

/**
 * @brief Watches shader directories and queues the files that change. The
 * fsnotify loop runs on its own goroutine; listeners only run from Poll, on
 * the caller's goroutine, so they can touch render state directly.
 */
type ShaderWatcher struct {
	shaders map[string]ShaderInfo
	pending []string
	mutex   sync.Mutex

	listeners []ReloadFunc

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewShaderWatcher() (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ShaderWatcher{
		shaders:  make(map[string]ShaderInfo),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Watch indexes the shaders under dir and watches it with all its sub-directories.
func (sw *ShaderWatcher) Watch(dir string) error {
	if sw.isClosed {
		return errors.New("shader watcher already closed")
	}
	if err := sw.watchRecursive(dir, false); err != nil {
		return err
	}
	if !sw.started {
		sw.started = true
		go sw.start()
	}
	return nil
}

// OnReload registers fn to run from Poll for every changed shader.
func (sw *ShaderWatcher) OnReload(fn ReloadFunc) {
	sw.listeners = append(sw.listeners, fn)
}

// Poll hands the shaders changed since the last call to the listeners and
// returns how many there were. Each path is reported once per call.
func (sw *ShaderWatcher) Poll() int {
	sw.mutex.Lock()
	pending := sw.pending
	sw.pending = nil
	sw.mutex.Unlock()

	for _, path := range pending {
		core.LogInfo("shader changed: %s", path)
		for _, fn := range sw.listeners {
			fn(path)
		}
	}
	return len(pending)
}

// Shaders returns the paths of every indexed shader, sorted.
func (sw *ShaderWatcher) Shaders() []string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	paths := maps.Keys(sw.shaders)
	slices.Sort(paths)
	return paths
}

// Shader returns what is known about the shader at path.
func (sw *ShaderWatcher) Shader(path string) (ShaderInfo, bool) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	info, ok := sw.shaders[path]
	return info, ok
}

func (sw *ShaderWatcher) Close() error {
	if sw.isClosed {
		return nil
	}
	sw.isClosed = true
	close(sw.done)
	if sw.started {
		<-sw.stopped
		return nil
	}
	return sw.fsnotify.Close()
}

func (sw *ShaderWatcher) start() {
	defer close(sw.stopped)
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := sw.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.handleFileEvent(e.Name, true)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				sw.removeShader(e.Name)
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sw.done:
			sw.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds or removes every directory under path and indexes the
// shaders found on the way.
func (sw *ShaderWatcher) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return sw.fsnotify.Remove(walkPath)
			}
			return sw.fsnotify.Add(walkPath)
		}
		sw.handleFileEvent(walkPath, false)
		return nil
	})
}

func (sw *ShaderWatcher) handleFileEvent(path string, changed bool) {
	kind := DetermineShaderKind(path)
	if kind == ShaderKindNone {
		return
	}
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	sw.shaders[path] = ShaderInfo{
		Path:       path,
		Kind:       kind,
		LastLoaded: time.Now(),
	}
	if !changed {
		return
	}
	for _, p := range sw.pending {
		if p == path {
			return
		}
	}
	sw.pending = append(sw.pending, path)
}

func (sw *ShaderWatcher) removeShader(path string) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	delete(sw.shaders, path)
}

func DetermineShaderKind(path string) ShaderKind {
	switch filepath.Ext(path) {
	case ".spv":
		return ShaderKindSPIRV
	case ".glsl", ".vert", ".frag", ".comp":
		return ShaderKindGLSL
	case ".fx":
		return ShaderKindEffect
	default:
		return ShaderKindNone
	}
}
