// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task id).
	UserError = 1

	// AuthError indicates an auth/config error.
	AuthError = 2

	// StoreError indicates the local store could not be opened, read or written.
	StoreError = 3
)
