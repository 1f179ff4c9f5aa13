//go:build unix && !linux

package supervisor

// awaitExit returns at once; without waitid the exit is observed by Wait.
func awaitExit(pid int) error {
	return nil
}
