// Package host provides the host-side collaborators of the script bridge: an
// emulated memory the scripts can read and write, a simulation loop that
// advances frames and posts frame events, and the alert channel diagnostics
// are raised on.
package host
