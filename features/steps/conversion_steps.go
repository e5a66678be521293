//go:build integration

package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mp4-mp3/application/conversion"
	"mp4-mp3/cmd"
	domain "mp4-mp3/domain/conversion"
	"mp4-mp3/infrastructure/filesystem"

	"github.com/cucumber/godog"
)

// mockEngine is an in-memory transcoding engine
type mockEngine struct {
	mu       sync.Mutex
	loadErr  error
	loaded   bool
	files    map[string][]byte
	commands []string
	failAt   int // 1-based command number that fails; 0 never fails
	failMsg  string
	gate     chan struct{} // when set, the first command blocks until closed
	started  chan struct{}
	onRun    func(ctx context.Context) error
	progress domain.ProgressFunc
}

func newMockEngine() *mockEngine {
	return &mockEngine{files: make(map[string][]byte), started: make(chan struct{}, 4)}
}

func (m *mockEngine) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

func (m *mockEngine) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *mockEngine) SetProgress(fn domain.ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = fn
}

func (m *mockEngine) Run(ctx context.Context, args ...string) error {
	m.mu.Lock()
	m.commands = append(m.commands, strings.Join(args, " "))
	index := len(m.commands)
	progress, gate, onRun := m.progress, m.gate, m.onRun
	m.mu.Unlock()

	m.started <- struct{}{}
	if gate != nil && index == 1 {
		<-gate
	}
	if progress != nil {
		progress(0.5)
		progress(1)
	}
	if onRun != nil {
		if err := onRun(ctx); err != nil {
			return err
		}
	}
	if index == m.failAt {
		return errors.New(m.failMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[args[len(args)-1]] = []byte("ID3 mock audio")
	return nil
}

func (m *mockEngine) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

func (m *mockEngine) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return data, nil
}

func (m *mockEngine) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return domain.ErrFileNotFound
	}
	delete(m.files, name)
	return nil
}

func (m *mockEngine) commandCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

type conversionContext struct {
	tempDir    string
	sourcePath string
	outputDir  string
	engine     *mockEngine
	output     bytes.Buffer
	err        error

	controller *conversion.Controller
	firstDone  <-chan conversion.Outcome
}

var SharedConversionContext = &conversionContext{}

func InitializeConversionScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedConversionContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "convert-test-*")
		if err != nil {
			return c, err
		}
		testCtx.tempDir = tempDir
		testCtx.sourcePath = ""
		testCtx.outputDir = filepath.Join(tempDir, "music")
		testCtx.engine = newMockEngine()
		testCtx.output.Reset()
		testCtx.err = nil
		testCtx.controller = nil
		testCtx.firstDone = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.engine != nil && testCtx.engine.gate != nil {
			select {
			case <-testCtx.engine.gate:
			default:
				close(testCtx.engine.gate)
			}
		}
		if testCtx.firstDone != nil {
			<-testCtx.firstDone
		}
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		return c, nil
	})

	ctx.Step(`^a source video "([^"]*)"$`, testCtx.aSourceVideo)
	ctx.Step(`^the transcoder cannot be loaded because "([^"]*)"$`, testCtx.theTranscoderCannotBeLoaded)
	ctx.Step(`^the transcoder fails the (demux|encode) step with "([^"]*)"$`, testCtx.theTranscoderFailsTheStep)
	ctx.Step(`^I press Ctrl\+C twice during the demux step$`, testCtx.iPressCtrlCTwiceDuringDemux)
	ctx.Step(`^I convert it(?: with quality "([^"]*)")?$`, testCtx.iConvertItWithQuality)
	ctx.Step(`^I convert it from "([^"]*)" to "([^"]*)"$`, testCtx.iConvertItFromTo)
	ctx.Step(`^the conversion should succeed$`, testCtx.theConversionShouldSucceed)
	ctx.Step(`^the conversion should fail with "([^"]*)"$`, testCtx.theConversionShouldFailWith)
	ctx.Step(`^"([^"]*)" should be written to the output directory$`, testCtx.shouldBeWrittenToTheOutputDirectory)
	ctx.Step(`^no MP3 should be written$`, testCtx.noMP3ShouldBeWritten)
	ctx.Step(`^the (demux|encode) command should contain "([^"]*)"$`, testCtx.theCommandShouldContain)
	ctx.Step(`^(\d+) transcoder commands? should have run$`, testCtx.transcoderCommandsShouldHaveRun)
	ctx.Step(`^no virtual files should remain$`, testCtx.noVirtualFilesShouldRemain)
	ctx.Step(`^the conversion output should contain "([^"]*)"$`, testCtx.theConversionOutputShouldContain)

	ctx.Step(`^a conversion is running$`, testCtx.aConversionIsRunning)
	ctx.Step(`^I start another conversion$`, testCtx.iStartAnotherConversion)
	ctx.Step(`^the second conversion should be rejected as already running$`, testCtx.theSecondConversionShouldBeRejected)
	ctx.Step(`^the running conversion should finish normally$`, testCtx.theRunningConversionShouldFinishNormally)
}

func (c *conversionContext) aSourceVideo(name string) error {
	c.sourcePath = filepath.Join(c.tempDir, name)
	return os.WriteFile(c.sourcePath, []byte("mock mp4 bytes"), 0644)
}

func (c *conversionContext) theTranscoderCannotBeLoaded(reason string) error {
	c.engine.loadErr = errors.New(reason)
	return nil
}

func (c *conversionContext) theTranscoderFailsTheStep(step, message string) error {
	c.engine.failAt = 1
	if step == "encode" {
		c.engine.failAt = 2
	}
	c.engine.failMsg = message
	return nil
}

func (c *conversionContext) iPressCtrlCTwiceDuringDemux() error {
	interrupts := make(chan os.Signal, 2)
	c.engine.onRun = func(ctx context.Context) error {
		interrupts <- os.Interrupt
		interrupts <- os.Interrupt
		<-ctx.Done()
		return ctx.Err()
	}
	return c.convert(cmd.ConvertOptions{}, interrupts)
}

func (c *conversionContext) iConvertItWithQuality(quality string) error {
	return c.convert(cmd.ConvertOptions{Quality: quality}, nil)
}

func (c *conversionContext) iConvertItFromTo(start, end string) error {
	return c.convert(cmd.ConvertOptions{StartTime: start, EndTime: end}, nil)
}

func (c *conversionContext) convert(opts cmd.ConvertOptions, interrupts chan os.Signal) error {
	opts.SourcePath = c.sourcePath
	opts.OutputDir = c.outputDir
	c.err = cmd.RunConvertWithDependencies(
		context.Background(),
		c.engine,
		filesystem.NewChecker(),
		nil,
		interrupts,
		nil,
		opts,
		&c.output,
	)
	return nil
}

func (c *conversionContext) theConversionShouldSucceed() error {
	if c.err != nil {
		return fmt.Errorf("conversion failed: %w", c.err)
	}
	return nil
}

func (c *conversionContext) theConversionShouldFailWith(message string) error {
	if c.err == nil {
		return fmt.Errorf("expected conversion to fail")
	}
	if !strings.Contains(c.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got %q", message, c.err.Error())
	}
	return nil
}

func (c *conversionContext) shouldBeWrittenToTheOutputDirectory(name string) error {
	data, err := os.ReadFile(filepath.Join(c.outputDir, name))
	if err != nil {
		return fmt.Errorf("expected %s in output directory: %w", name, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", name)
	}
	return nil
}

func (c *conversionContext) noMP3ShouldBeWritten() error {
	matches, _ := filepath.Glob(filepath.Join(c.outputDir, "*.mp3"))
	if len(matches) > 0 {
		return fmt.Errorf("expected no MP3 files, found %v", matches)
	}
	return nil
}

func (c *conversionContext) theCommandShouldContain(step, text string) error {
	index := 0
	if step == "encode" {
		index = 1
	}
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if index >= len(c.engine.commands) {
		return fmt.Errorf("the %s command did not run", step)
	}
	if !strings.Contains(c.engine.commands[index], text) {
		return fmt.Errorf("expected %s command to contain %q, got %q", step, text, c.engine.commands[index])
	}
	return nil
}

func (c *conversionContext) transcoderCommandsShouldHaveRun(count int) error {
	if got := c.engine.commandCount(); got != count {
		return fmt.Errorf("expected %d transcoder commands, got %d", count, got)
	}
	return nil
}

func (c *conversionContext) noVirtualFilesShouldRemain() error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if len(c.engine.files) > 0 {
		names := make([]string, 0, len(c.engine.files))
		for name := range c.engine.files {
			names = append(names, name)
		}
		return fmt.Errorf("virtual files remain: %v", names)
	}
	return nil
}

func (c *conversionContext) theConversionOutputShouldContain(text string) error {
	if !strings.Contains(c.output.String(), text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, c.output.String())
	}
	return nil
}

func (c *conversionContext) aConversionIsRunning() error {
	c.engine.gate = make(chan struct{})
	c.controller = conversion.NewController(conversion.NewEngineHandle(c.engine, nil))

	_, done, err := c.controller.Submit(context.Background(), domain.Source{Name: "first.mp4", Data: []byte("first")}, domain.Options{})
	if err != nil {
		return err
	}
	c.firstDone = done

	select {
	case <-c.engine.started:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("first conversion did not start")
	}
}

func (c *conversionContext) iStartAnotherConversion() error {
	_, c.err = c.controller.Start(context.Background(), domain.Source{Name: "second.mp4", Data: []byte("second")}, domain.Options{})
	return nil
}

func (c *conversionContext) theSecondConversionShouldBeRejected() error {
	if !errors.Is(c.err, domain.ErrAlreadyRunning) {
		return fmt.Errorf("expected ErrAlreadyRunning, got %v", c.err)
	}
	if snapshot := c.controller.Snapshot(); snapshot.SourceName != "first.mp4" || !snapshot.Busy {
		return fmt.Errorf("expected first.mp4 to remain active, got %+v", snapshot)
	}
	return nil
}

func (c *conversionContext) theRunningConversionShouldFinishNormally() error {
	close(c.engine.gate)
	outcome := <-c.firstDone
	c.firstDone = nil
	if outcome.Err != nil {
		return fmt.Errorf("first conversion failed: %w", outcome.Err)
	}
	if outcome.Result.FileName != "first.mp3" {
		return fmt.Errorf("expected first.mp3, got %s", outcome.Result.FileName)
	}
	return nil
}
