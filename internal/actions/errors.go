package actions

import "fmt"

func errUnhandledType(t Type) error {
	return fmt.Errorf("actions: no handler registered for %q", t)
}

var errSpawnDepthExceeded = fmt.Errorf("actions: spawned agents cannot spawn further agents")
