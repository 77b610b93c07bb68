package authstate

import "context"

// Facade is the read/update surface handed to consumers. It is constructed
// from a store at wiring time instead of being looked up from ambient state.
type Facade struct {
	store *Store
}

// NewFacade binds a facade to s. A nil store is a wiring bug.
func NewFacade(s *Store) (*Facade, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	return &Facade{store: s}, nil
}

// Store returns the underlying store.
func (f *Facade) Store() *Store {
	return f.store
}

// Session returns the current snapshot, or a misuse error when the store has
// not been initialized or its scope has ended.
func (f *Facade) Session() (Snapshot, error) {
	if err := f.store.checkActive(); err != nil {
		return Snapshot{}, err
	}
	return f.store.State(), nil
}

// IsAuthenticated reports whether an identity is present. It is false outside
// an active store scope.
func (f *Facade) IsAuthenticated() bool {
	snap, err := f.Session()
	return err == nil && snap.Authenticated()
}

// View classifies the current session for rendering or routing.
func (f *Facade) View() (View, error) {
	snap, err := f.Session()
	if err != nil {
		return ViewLoading, err
	}
	return Decide(snap), nil
}

// Subscribe registers fn for every publish; see [Store.OnChange].
func (f *Facade) Subscribe(fn Listener) *Registration {
	return f.store.OnChange(fn)
}

// Watch registers fn until ctx ends; see [Store.Watch].
func (f *Facade) Watch(ctx context.Context, fn Listener) *Registration {
	return f.store.Watch(ctx, fn)
}

func (f *Facade) UpdateProfile(patch ProfilePatch) error {
	return f.store.UpdateProfile(patch)
}

func (f *Facade) UpdateCredits(credits int64) error {
	return f.store.UpdateCredits(credits)
}

func (f *Facade) RefreshProfile(ctx context.Context) error {
	return f.store.RefreshProfile(ctx)
}

func (f *Facade) SignOut(ctx context.Context) error {
	return f.store.SignOut(ctx)
}
