// Package lifecycle implements the node lifecycle controller.
//
// Startup is strictly sequential:
//
//  1. Connecting: record identity; join mode dials known peers (warnings only)
//  2. GateWaiting: join mode waits for the minimum peer count
//  3. Attaching: create or open the store, then load it (fatal on error)
//  4. Announcing: derive the content address, announce once, arm re-announce
//  5. Steady: observe replication, report peers, apply seed entries
//
// After Steady three activities run independently until the context is
// cancelled: the re-announce job, the peer monitor and the store's
// replication listener.
//
// Cancelling the context or calling Stop before Steady aborts startup
// cleanly and Start returns ErrStartupCancelled. A store opened mid-attach
// is closed.
//
// The controller talks to the outside world only through Overlay, Opener
// and Store, so tests drive it with fakes and a mock clock.
package lifecycle
