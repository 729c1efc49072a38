// Package comms layers request/response delegation and broadcast on top of
// the Message Bus (see internal/bus), plus per-peer trust bookkeeping. A
// Layer owns one agent identity's inbound task topic and result topic and
// correlates outstanding delegations by message id.
package comms
