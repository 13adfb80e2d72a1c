// Package app is the composition root for the vrcpulse watcher.
//
// # Overview
//
// Run wires configuration, the VRChat client and the session manager,
// then drives them from the terminal:
//
//  1. Load ~/.config/vrcpulse/config.toml (defaults when missing)
//  2. Build the VRChat client and a session.Manager around it
//  3. Prompt for credentials, and a second factor code when asked
//  4. Wait out a cool-down if the service throttles the attempt
//  5. Print activity events as polls produce them
//  6. Read line commands from stdin until quit or cancellation
//  7. Optionally export the activity log on the way out
//
// # Commands
//
//	refresh        poll friends now
//	friends        list friends
//	status         show connection status
//	log            print the activity log
//	export <path>  write the activity log (.json or .yaml)
//	logout         disconnect and exit
//	quit           exit
//
// Closing stdin does not stop the watcher; it keeps streaming until the
// context is cancelled.
package app
