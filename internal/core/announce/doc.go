// Package announce keeps the node's content address discoverable.
//
// Scheduler.Announce performs a single publish through the overlay's
// content routing. Scheduler.Start arms a Job that repeats it on a fixed
// period. There is no back-off and no failure ceiling: a provider record
// expires on the routing layer, so the node keeps trying at the same
// cadence for as long as it runs.
package announce
