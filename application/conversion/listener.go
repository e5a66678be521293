package conversion

import "mp4-mp3/domain/conversion"

// Listener observes a controller. Calls are made outside the controller's lock,
// so a listener may call back into the controller.
type Listener interface {
	// StageChanged is called after every state transition and cancel request
	StageChanged(snapshot conversion.JobSnapshot)

	// ProgressChanged is called when a displayed percentage changes
	ProgressChanged(stage conversion.Stage, progress conversion.Indicators)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are skipped
type ListenerFuncs struct {
	OnStage    func(conversion.JobSnapshot)
	OnProgress func(conversion.Stage, conversion.Indicators)
}

// StageChanged implements Listener
func (l ListenerFuncs) StageChanged(snapshot conversion.JobSnapshot) {
	if l.OnStage != nil {
		l.OnStage(snapshot)
	}
}

// ProgressChanged implements Listener
func (l ListenerFuncs) ProgressChanged(stage conversion.Stage, progress conversion.Indicators) {
	if l.OnProgress != nil {
		l.OnProgress(stage, progress)
	}
}

// Ensure ListenerFuncs implements Listener
var _ Listener = ListenerFuncs{}
