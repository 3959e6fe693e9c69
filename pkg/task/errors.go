package task

import "errors"

var (
	errNotCompleted = errors.New("task: commit called before task reached COMPLETED")
	errNoPushback   = errors.New("task: pushback not legal for this task")
	errNotYielded   = errors.New("task: pushback called on a task that is not pushback-ready")
)
