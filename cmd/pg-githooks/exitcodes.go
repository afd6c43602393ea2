package main

// Exit codes are the hook protocol: git refuses a ref update on any
// non-zero status from the update hook, and the distinct codes let
// operators tell a policy refusal from a broken setup.
const (
	ExitSuccess        = 0 // allowed / completed
	ExitFailure        = 1 // policy refusal or runtime failure
	ExitConfigError    = 2 // configuration problem
	ExitIntegrityError = 3 // repository or object store problem
)
