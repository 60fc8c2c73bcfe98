package models

import "time"

// TimerState is the shared pomodoro state for one room. EndTime is the
// authoritative wire representation: an absolute wall-clock instant in unix
// seconds. Remaining time is always derived from it and the local clock,
// never transmitted as a trusted value, so participants with skewed clocks or
// delayed delivery still converge. When IsRunning is false EndTime is
// meaningless and omitted.
type TimerState struct {
	IsRunning   bool   `json:"isRunning"`
	EndTime     *int64 `json:"endTime,omitempty"`
	TotalTime   int    `json:"totalTime,omitempty"`
	ElapsedTime int    `json:"elapsedTime,omitempty"`
}

// RemainingAt derives the remaining seconds at the given instant. Zero when
// stopped, when EndTime is absent, or when the deadline has passed.
func (t TimerState) RemainingAt(now time.Time) int {
	if !t.IsRunning || t.EndTime == nil {
		return 0
	}
	remaining := *t.EndTime - now.Unix()
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// ValidEndTimeAt reports whether EndTime is present and still in the future,
// the condition for accepting an authoritative running update as-is.
func (t TimerState) ValidEndTimeAt(now time.Time) bool {
	return t.EndTime != nil && *t.EndTime > now.Unix()
}
