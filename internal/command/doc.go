// Package command implements the text command surface of the heartbeat
// daemon: add, delete, setretries, list and help. Input is validated here
// before it reaches the registry, and every outcome is reported to the
// notifier as well as returned to the caller.
package command
