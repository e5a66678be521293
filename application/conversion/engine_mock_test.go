package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mp4-mp3/domain/conversion"
)

// mockEngine implements conversion.Engine in memory for testing
type mockEngine struct {
	mu sync.Mutex

	loaded    bool
	loadCalls int
	loadErrs  []error       // returned by successive Load calls
	loadGate  chan struct{} // Load blocks until closed when set
	loadSeen  chan struct{} // receives once per Load call when set
	files     map[string][]byte
	writes    []string
	runs      [][]string
	runErrs   map[int]error // keyed by run index
	unlinkErr map[string]error
	ratios    []float64       // emitted during every run
	onRun     func(index int) // called while a run is in progress
	onRead    func(name string)
	progress  conversion.ProgressFunc
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		files:     make(map[string][]byte),
		runErrs:   make(map[int]error),
		unlinkErr: make(map[string]error),
		ratios:    []float64{0.37, 1},
	}
}

func (m *mockEngine) Load(ctx context.Context) error {
	if m.loadSeen != nil {
		m.loadSeen <- struct{}{}
	}
	if m.loadGate != nil {
		<-m.loadGate
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if len(m.loadErrs) > 0 {
		err := m.loadErrs[0]
		m.loadErrs = m.loadErrs[1:]
		if err != nil {
			return err
		}
	}
	m.loaded = true
	return nil
}

func (m *mockEngine) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *mockEngine) SetProgress(fn conversion.ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = fn
}

func (m *mockEngine) Run(ctx context.Context, args ...string) error {
	m.mu.Lock()
	index := len(m.runs)
	m.runs = append(m.runs, args)
	progress := m.progress
	runErr := m.runErrs[index]
	input, output := args[1], args[len(args)-1]
	_, haveInput := m.files[input]
	m.mu.Unlock()

	if !haveInput {
		return fmt.Errorf("%s: No such file or directory", input)
	}

	for _, r := range m.ratios {
		if progress != nil {
			progress(r)
		}
	}
	if m.onRun != nil {
		m.onRun(index)
	}
	if runErr != nil {
		return runErr
	}

	m.mu.Lock()
	m.files[output] = []byte("encoded:" + output)
	m.mu.Unlock()
	return nil
}

func (m *mockEngine) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, name)
	m.files[name] = data
	return nil
}

func (m *mockEngine) ReadFile(name string) ([]byte, error) {
	if m.onRead != nil {
		m.onRead(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, conversion.ErrFileNotFound
	}
	return data, nil
}

func (m *mockEngine) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlinkErr[name]; err != nil {
		return err
	}
	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("unlink %s: %w", name, conversion.ErrFileNotFound)
	}
	delete(m.files, name)
	return nil
}

func (m *mockEngine) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *mockEngine) fileNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	return names
}

// Ensure mockEngine implements conversion.Engine
var _ conversion.Engine = (*mockEngine)(nil)

var errNetwork = errors.New("network error")
