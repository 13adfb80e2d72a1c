// Package session implements the connection state machine for a VRChat
// account and owns everything that lives for the length of one login.
//
// # Phases
//
//	Disconnected --Initiate--> Connecting --ok--> Connected
//	Connecting --second factor--> AwaitingSecondFactor --ok--> Connected
//	AwaitingSecondFactor --invalid code--> AwaitingSecondFactor
//	AwaitingSecondFactor --fatal--> Disconnected
//	{Connecting, AwaitingSecondFactor} --throttled--> RateLimited --cool-down--> Disconnected
//	Connecting --invalid credentials--> Disconnected
//	Connecting --unclassified--> Failed
//	Connected --Disconnect--> Disconnected
//
// Credentials exist only in Connecting and AwaitingSecondFactor. Every
// other phase wipes them on entry.
//
// # Generations
//
// Initiate and Disconnect bump a generation counter. Handshake and poll
// results carry the generation they started under and are dropped with
// ErrStaleResult if it changed while the network call was outstanding.
//
// # Presentation
//
// View returns a copy of the phase, last classification, session, friends
// and activity log. Subscribe delivers a coalescing change signal.
package session
