package scheduler

// Pose is a default head and lift position, re-issued when a preempted
// unit resumes with nothing else queued.
type Pose struct {
	HeadAngle  float64
	LiftHeight float64
}

// Actuator is the slice of the action execution layer the scheduler drives
// when switching units.
type Actuator interface {
	StopAllMotors()
	AnyTracksLocked() bool
	UnlockAllTracks()
	ActionQueueEmpty() bool
	QueueDefaultPose(p Pose)
}

// NopActuator does nothing and always reports an empty action queue.
type NopActuator struct{}

func (NopActuator) StopAllMotors()         {}
func (NopActuator) AnyTracksLocked() bool  { return false }
func (NopActuator) UnlockAllTracks()       {}
func (NopActuator) ActionQueueEmpty() bool { return true }
func (NopActuator) QueueDefaultPose(Pose)  {}
