// Package heartbeat runs the schedule of a single endpoint.
//
// A Task owns one goroutine. After a short warm-up it probes the endpoint on
// every period; when a probe fails and a retry policy is attached, the same
// goroutine enters an escalation and re-probes at the faster retry pace until
// the endpoint answers or the attempt budget is spent. Regular and retry
// probes of one endpoint therefore never overlap, while every endpoint runs
// independently of the others.
//
// The lifecycle of a task is tracked by a small state machine:
//
//	idle --escalate--> retrying --conclude--> idle
//	idle|retrying --cancel--> cancelled
package heartbeat
