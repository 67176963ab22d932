package catalog

import (
	"cmp"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/tbxark/talkform/form"
)

// DomainsFile holds the shared value domains; every other YAML file defines one form.
const DomainsFile = "domains.yaml"

//go:embed data/*.yaml
var embedded embed.FS

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadDir loads the catalog from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads the domains file and every form definition found at the root of fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var domains Domains
	data, err := fs.ReadFile(fsys, DomainsFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DomainsFile, err)
	}
	if err := yaml.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("parse %s: %w", DomainsFile, err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	type ordered struct {
		order int
		spec  *form.Spec
	}
	var loaded []ordered
	intents := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == DomainsFile || !isYAML(entry.Name()) {
			continue
		}
		def, err := readDefinition(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", entry.Name(), err)
		}
		spec, err := def.Compile(&domains)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", entry.Name(), err)
		}
		for _, o := range loaded {
			if o.spec.Name == spec.Name {
				return nil, fmt.Errorf("duplicate form %q", spec.Name)
			}
		}
		for _, intent := range spec.ActivationIntents {
			if other, ok := intents[intent]; ok {
				return nil, fmt.Errorf("intent %q activates both %q and %q", intent, other, spec.Name)
			}
			intents[intent] = spec.Name
		}
		loaded = append(loaded, ordered{order: def.Order, spec: spec})
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("catalog has no forms")
	}

	slices.SortStableFunc(loaded, func(a, b ordered) int {
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		return cmp.Compare(a.spec.Name, b.spec.Name)
	})
	specs := make([]*form.Spec, 0, len(loaded))
	for _, o := range loaded {
		specs = append(specs, o.spec)
	}
	return newCatalog(specs, domains), nil
}

func readDefinition(fsys fs.FS, name string) (*Definition, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if def.Name == "" {
		ext := path.Ext(name)
		def.Name = name[:len(name)-len(ext)]
	}
	return &def, nil
}

func isYAML(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// Loader serves the current catalog and optionally reloads it when the directory changes.
// An empty directory selects the embedded catalog.
type Loader struct {
	dir string

	mu      sync.RWMutex
	current *Catalog
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads the catalog and makes it current. A failed load keeps the previous catalog.
func (l *Loader) Load() (*Catalog, error) {
	var (
		c   *Catalog
		err error
	)
	if l.dir == "" {
		c, err = Default()
	} else {
		c, err = LoadDir(l.dir)
	}
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = c
	l.mu.Unlock()
	return c, nil
}

// Current returns the last successfully loaded catalog, or nil before the first Load.
func (l *Loader) Current() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// WatchAndReload reloads the catalog whenever a YAML file in the directory is written or
// created. It blocks until done is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	if l.dir == "" {
		return fmt.Errorf("embedded catalog cannot be watched")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isYAML(filepath.Base(event.Name)) {
				continue
			}
			if _, err := l.Load(); err != nil {
				slog.Warn("Catalog reload failed", "file", event.Name, "error", err)
				continue
			}
			slog.Info("Catalog reloaded", "file", event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
