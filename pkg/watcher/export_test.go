package watcher

// LiveHandles counts stream contexts that have not been fully released.
func LiveHandles() int { return handles.Size() }
