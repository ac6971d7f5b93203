package handler

import (
	"slices"
	"sync"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrDuplicateCommand = errors.New("duplicate command")
	ErrInvalidCommand   = errors.New("invalid command descriptor")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Registry maps command names to descriptors. It is filled at startup and
// read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]*Descriptor
}

func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{descs: make(map[string]*Descriptor, len(descs))}

	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" || d.Handler == nil {
		return errors.Wrapf(ErrInvalidCommand, "name=%q", d.Name)
	}

	for _, k := range d.Args {
		if !k.Valid() || k == codec.KindProgress {
			return errors.Wrapf(ErrInvalidCommand, "%s: argument kind %s", d.Name, k)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.descs[d.Name]; ok {
		return errors.Wrapf(ErrDuplicateCommand, "%s", d.Name)
	}

	d.Args = slices.Clone(d.Args)
	r.descs[d.Name] = &d

	return nil
}

func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// SetCancelMode overrides the cancel mode of a registered command.
func (r *Registry) SetCancelMode(name string, mode CancelMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descs[name]
	if !ok {
		return errors.Wrapf(ErrUnknownCommand, "%s", name)
	}

	d.Cancel = mode

	return nil
}

// Lookup returns a copy of the descriptor registered for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descs[name]
	if !ok {
		return Descriptor{}, false
	}

	return *d, true
}

func (r *Registry) IsCancellable(name string) bool {
	d, ok := r.Lookup(name)
	return ok && d.Cancellable()
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descs))
	for name := range r.descs {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
