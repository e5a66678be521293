package conversion

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"mp4-mp3/domain/conversion"
)

// recordingListener captures listener calls for verification
type recordingListener struct {
	mu        sync.Mutex
	stages    []conversion.Stage
	progress  []conversion.Indicators
	snapshots []conversion.JobSnapshot
	onStage   func(conversion.JobSnapshot)
	onProg    func(conversion.Stage, conversion.Indicators)
}

func (r *recordingListener) StageChanged(s conversion.JobSnapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	if n := len(r.stages); n == 0 || r.stages[n-1] != s.Stage {
		r.stages = append(r.stages, s.Stage)
	}
	r.mu.Unlock()
	if r.onStage != nil {
		r.onStage(s)
	}
}

func (r *recordingListener) ProgressChanged(stage conversion.Stage, p conversion.Indicators) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
	if r.onProg != nil {
		r.onProg(stage, p)
	}
}

func newTestController(engine *mockEngine, listener Listener) *Controller {
	opts := []ControllerOption{}
	if listener != nil {
		opts = append(opts, WithListener(listener))
	}
	return NewController(NewEngineHandle(engine, nil), opts...)
}

func testSource() conversion.Source {
	return conversion.Source{Name: "clip.mp4", Data: make([]byte, 5*1024*1024)}
}

func TestController_Start_Success(t *testing.T) {
	engine := newMockEngine()
	listener := &recordingListener{}
	c := newTestController(engine, listener)

	result, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	if result.FileName != "clip.mp3" {
		t.Errorf("FileName = %q, want %q", result.FileName, "clip.mp3")
	}
	if result.MimeType != "audio/mpeg" {
		t.Errorf("MimeType = %q, want audio/mpeg", result.MimeType)
	}
	if string(result.Data) != "encoded:output.mp3" {
		t.Errorf("Data = %q, want encoded output", result.Data)
	}

	wantStages := []conversion.Stage{
		conversion.StageLoading,
		conversion.StageDemuxing,
		conversion.StageEncoding,
		conversion.StageDone,
	}
	if !reflect.DeepEqual(listener.stages, wantStages) {
		t.Errorf("stages = %v, want %v", listener.stages, wantStages)
	}

	snapshot := c.Snapshot()
	if snapshot.Stage != conversion.StageDone || snapshot.Busy {
		t.Errorf("Snapshot() = %+v, want done and not busy", snapshot)
	}
	if snapshot.Progress != (conversion.Indicators{Demux: 100, Encode: 100}) {
		t.Errorf("Progress = %+v, want both indicators at 100", snapshot.Progress)
	}
	if snapshot.ResultName != "clip.mp3" {
		t.Errorf("ResultName = %q, want clip.mp3", snapshot.ResultName)
	}

	if engine.runCount() != 2 {
		t.Fatalf("engine runs = %d, want 2", engine.runCount())
	}
	if !reflect.DeepEqual(engine.runs[0], conversion.DemuxArgs(conversion.Options{})) {
		t.Errorf("stage 1 args = %v", engine.runs[0])
	}
	wantEncode := []string{"-i", "output.wav", "-codec:a", "libmp3lame", "-qscale:a", "2", "output.mp3"}
	if !reflect.DeepEqual(engine.runs[1], wantEncode) {
		t.Errorf("stage 2 args = %v, want %v", engine.runs[1], wantEncode)
	}
	if names := engine.fileNames(); len(names) != 0 {
		t.Errorf("virtual files left behind: %v", names)
	}
}

func TestController_Start_UsesRequestedQuality(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)

	opts, err := conversion.NewOptions("128k", "", "")
	if err != nil {
		t.Fatalf("NewOptions() unexpected error: %v", err)
	}
	if _, err := c.Start(context.Background(), testSource(), opts); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	if got := engine.runs[1]; !contains(got, "-b:a") || !contains(got, "128k") {
		t.Errorf("stage 2 args = %v, want -b:a 128k", got)
	}
	if got := c.Snapshot().Quality; got != "128k" {
		t.Errorf("Snapshot().Quality = %q, want 128k", got)
	}
}

func TestController_ProgressRoutedToActiveStage(t *testing.T) {
	engine := newMockEngine()
	engine.ratios = []float64{0.37}
	listener := &recordingListener{}
	c := newTestController(engine, listener)

	if _, err := c.Start(context.Background(), testSource(), conversion.Options{}); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	want := []conversion.Indicators{
		{Demux: 37, Encode: 0},
		{Demux: 100, Encode: 0},
		{Demux: 100, Encode: 37},
		{Demux: 100, Encode: 100},
	}
	if !reflect.DeepEqual(listener.progress, want) {
		t.Errorf("progress = %v, want %v", listener.progress, want)
	}
}

func TestController_Start_AlreadyRunning(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)

	var (
		secondErr    error
		before       conversion.JobSnapshot
		after        conversion.JobSnapshot
		secondResult *conversion.Result
	)
	engine.onRun = func(index int) {
		if index != 0 {
			return
		}
		before = c.Snapshot()
		secondResult, secondErr = c.Start(context.Background(), conversion.Source{Name: "other.mp4", Data: []byte("x")}, conversion.Options{})
		after = c.Snapshot()
	}

	if _, err := c.Start(context.Background(), testSource(), conversion.Options{}); err != nil {
		t.Fatalf("first Start() unexpected error: %v", err)
	}

	if !errors.Is(secondErr, conversion.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", secondErr)
	}
	if secondResult != nil {
		t.Errorf("second Start() result = %+v, want nil", secondResult)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("active job changed by rejected start:\nbefore %+v\nafter  %+v", before, after)
	}
	if after.SourceName != "clip.mp4" || after.Stage != conversion.StageDemuxing {
		t.Errorf("active job = %+v, want clip.mp4 demuxing", after)
	}
	if engine.runCount() != 2 {
		t.Errorf("engine runs = %d, want 2", engine.runCount())
	}
}

func TestController_CancelBetweenStages(t *testing.T) {
	engine := newMockEngine()
	engine.ratios = []float64{0.37}
	listener := &recordingListener{}
	c := newTestController(engine, listener)

	var canceled bool
	listener.onProg = func(stage conversion.Stage, p conversion.Indicators) {
		// stage 1 finished, stage 2 not started yet
		if stage == conversion.StageDemuxing && p.Demux == 100 && !canceled {
			canceled = c.Cancel()
		}
	}

	_, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if !canceled {
		t.Fatal("Cancel() returned false for an active job")
	}
	if !errors.Is(err, conversion.ErrCanceled) {
		t.Fatalf("Start() error = %v, want ErrCanceled", err)
	}
	if engine.runCount() != 1 {
		t.Errorf("engine runs = %d, want stage 2 never invoked", engine.runCount())
	}

	snapshot := c.Snapshot()
	if snapshot.Stage != conversion.StageCanceled {
		t.Errorf("Stage = %s, want canceled", snapshot.Stage)
	}
	if snapshot.Message != "Conversion canceled." {
		t.Errorf("Message = %q", snapshot.Message)
	}
	if names := engine.fileNames(); len(names) != 0 {
		t.Errorf("virtual files left behind: %v", names)
	}
}

func TestController_CancelDuringStageDoesNotPreempt(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)
	engine.onRun = func(index int) {
		if index == 1 {
			c.Cancel()
		}
	}

	_, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if !errors.Is(err, conversion.ErrCanceled) {
		t.Fatalf("Start() error = %v, want ErrCanceled", err)
	}
	if engine.runCount() != 2 {
		t.Errorf("engine runs = %d, want running stage to complete", engine.runCount())
	}
	if c.Snapshot().Stage != conversion.StageCanceled {
		t.Errorf("Stage = %s, want canceled", c.Snapshot().Stage)
	}
}

func TestController_CancelAfterDoneHasNoEffect(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)

	result, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if c.Cancel() {
		t.Error("Cancel() after completion returned true")
	}
	if c.Snapshot().Stage != conversion.StageDone || result == nil {
		t.Errorf("Stage = %s, want done", c.Snapshot().Stage)
	}
}

func TestController_CancelWhileReadingOutputIsIgnored(t *testing.T) {
	engine := newMockEngine()
	listener := &recordingListener{}
	c := newTestController(engine, listener)

	var canceled, busy bool
	engine.onRead = func(name string) {
		if name == conversion.OutputFile {
			busy = c.Busy()
			canceled = c.Cancel()
		}
	}

	result, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if !busy {
		t.Fatal("output was read after the job finished")
	}
	if canceled {
		t.Error("Cancel() after the last cancel check returned true")
	}
	if result == nil || c.Snapshot().Stage != conversion.StageDone {
		t.Errorf("Stage = %s, want done", c.Snapshot().Stage)
	}
	if c.Snapshot().CancelRequested {
		t.Error("snapshot reports a cancel request that was ignored")
	}
}

func TestController_ResultAvailableWhenDoneIsNotified(t *testing.T) {
	engine := newMockEngine()
	var seen *conversion.Result
	listener := &recordingListener{}
	c := newTestController(engine, listener)
	listener.onStage = func(s conversion.JobSnapshot) {
		if s.Stage == conversion.StageDone && seen == nil {
			seen = c.Result()
		}
	}

	result, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if seen == nil || seen != result {
		t.Errorf("Result() during the done notification = %v, want the job's result", seen)
	}

	engine.runErrs[2] = errNetwork
	if _, err := c.Start(context.Background(), testSource(), conversion.Options{}); err == nil {
		t.Fatal("second Start() expected error")
	}
	if c.Result() != nil {
		t.Error("Result() still returns the previous job's output after a failed job")
	}
}

func TestController_CancelWhenIdle(t *testing.T) {
	c := newTestController(newMockEngine(), nil)
	if c.Cancel() {
		t.Error("Cancel() with no active job returned true")
	}
	if c.Snapshot().Stage != conversion.StageIdle {
		t.Errorf("Stage = %s, want idle", c.Snapshot().Stage)
	}
}

func TestController_EngineLoadFailure(t *testing.T) {
	engine := newMockEngine()
	engine.loadErrs = []error{errNetwork}
	listener := &recordingListener{}
	c := newTestController(engine, listener)

	_, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if !errors.Is(err, conversion.ErrEngineUnavailable) {
		t.Fatalf("Start() error = %v, want ErrEngineUnavailable", err)
	}
	if !errors.Is(err, errNetwork) {
		t.Errorf("Start() error = %v, want cause preserved", err)
	}

	wantStages := []conversion.Stage{conversion.StageLoading, conversion.StageFailed}
	if !reflect.DeepEqual(listener.stages, wantStages) {
		t.Errorf("stages = %v, want %v", listener.stages, wantStages)
	}
	if len(engine.writes) != 0 {
		t.Errorf("virtual files written = %v, want none", engine.writes)
	}
	if engine.runCount() != 0 {
		t.Errorf("engine runs = %d, want 0", engine.runCount())
	}
	if got := c.Snapshot().Message; got != "Error loading transcoder: network error" {
		t.Errorf("Message = %q", got)
	}

	// the next job retries the load
	if _, err := c.Start(context.Background(), testSource(), conversion.Options{}); err != nil {
		t.Fatalf("second Start() unexpected error: %v", err)
	}
	if engine.loadCalls != 2 {
		t.Errorf("loadCalls = %d, want 2", engine.loadCalls)
	}
}

func TestController_StageFailure(t *testing.T) {
	tests := []struct {
		name      string
		failRun   int
		wantRuns  int
		wantStage conversion.Stage
	}{
		{"demux fails", 0, 1, conversion.StageDemuxing},
		{"encode fails", 1, 2, conversion.StageEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newMockEngine()
			engine.runErrs[tt.failRun] = errors.New("Invalid data found when processing input")
			c := newTestController(engine, nil)

			_, err := c.Start(context.Background(), testSource(), conversion.Options{})
			if !errors.Is(err, conversion.ErrTranscodeFailed) {
				t.Fatalf("Start() error = %v, want ErrTranscodeFailed", err)
			}

			var te *conversion.TranscodeError
			if !errors.As(err, &te) {
				t.Fatalf("Start() error = %T, want *TranscodeError", err)
			}
			if te.Stage != tt.wantStage {
				t.Errorf("TranscodeError.Stage = %s, want %s", te.Stage, tt.wantStage)
			}
			if te.Message != "Invalid data found when processing input" {
				t.Errorf("TranscodeError.Message = %q", te.Message)
			}
			if engine.runCount() != tt.wantRuns {
				t.Errorf("engine runs = %d, want %d", engine.runCount(), tt.wantRuns)
			}
			if c.Snapshot().Stage != conversion.StageFailed {
				t.Errorf("Stage = %s, want failed", c.Snapshot().Stage)
			}
			if names := engine.fileNames(); len(names) != 0 {
				t.Errorf("virtual files left behind: %v", names)
			}
		})
	}
}

func TestController_CleanupErrorsAreSuppressed(t *testing.T) {
	engine := newMockEngine()
	engine.unlinkErr[conversion.IntermediateFile] = errors.New("device busy")
	c := newTestController(engine, nil)

	result, err := c.Start(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Start() error = %v, want cleanup failure suppressed", err)
	}
	if result.FileName != "clip.mp3" {
		t.Errorf("FileName = %q", result.FileName)
	}
	for _, name := range engine.fileNames() {
		if name != conversion.IntermediateFile {
			t.Errorf("virtual file %q left behind", name)
		}
	}
}

func TestController_SequentialJobsReuseFileNames(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Start(context.Background(), testSource(), conversion.Options{}); err != nil {
			t.Fatalf("job %d: Start() unexpected error: %v", i, err)
		}
	}

	want := []string{conversion.InputFile, conversion.InputFile}
	if !reflect.DeepEqual(engine.writes, want) {
		t.Errorf("writes = %v, want %v", engine.writes, want)
	}
	if engine.loadCalls != 1 {
		t.Errorf("loadCalls = %d, want 1", engine.loadCalls)
	}
}

func TestController_ContextCanceledBeforeFirstStage(t *testing.T) {
	engine := newMockEngine()
	c := newTestController(engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Start(ctx, testSource(), conversion.Options{})
	if !errors.Is(err, conversion.ErrCanceled) {
		t.Fatalf("Start() error = %v, want ErrCanceled", err)
	}
	if engine.runCount() != 0 {
		t.Errorf("engine runs = %d, want 0", engine.runCount())
	}
	if names := engine.fileNames(); len(names) != 0 {
		t.Errorf("virtual files left behind: %v", names)
	}
}

func TestController_EmptySource(t *testing.T) {
	c := newTestController(newMockEngine(), nil)
	_, err := c.Start(context.Background(), conversion.Source{Name: "empty.mp4"}, conversion.Options{})
	if !errors.Is(err, conversion.ErrNoSource) {
		t.Errorf("Start() error = %v, want ErrNoSource", err)
	}
	if c.Busy() {
		t.Error("controller busy after rejected start")
	}
}

func TestController_Submit(t *testing.T) {
	engine := newMockEngine()
	engine.loadGate = make(chan struct{})
	c := newTestController(engine, nil)

	snapshot, done, err := c.Submit(context.Background(), testSource(), conversion.Options{})
	if err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}
	if !snapshot.Busy || snapshot.JobID == "" || snapshot.SourceName != "clip.mp4" {
		t.Errorf("Submit() snapshot = %+v, want the new busy job", snapshot)
	}
	if snapshot.Quality != "q2" {
		t.Errorf("Quality = %q, want default q2", snapshot.Quality)
	}

	if _, _, err := c.Submit(context.Background(), testSource(), conversion.Options{}); !errors.Is(err, conversion.ErrAlreadyRunning) {
		t.Errorf("second Submit() error = %v, want ErrAlreadyRunning", err)
	}

	close(engine.loadGate)
	outcome := <-done
	if outcome.Err != nil {
		t.Fatalf("outcome error: %v", outcome.Err)
	}
	if outcome.Result.JobID != snapshot.JobID {
		t.Errorf("result job = %q, want %q", outcome.Result.JobID, snapshot.JobID)
	}
	if _, open := <-done; open {
		t.Error("done channel should be closed after the outcome")
	}
	if c.Busy() {
		t.Error("controller still busy after outcome")
	}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
