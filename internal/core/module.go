package core

// ModuleID uniquely identifies a module in the registry, e.g. "backend.native"
// or "channel.telegram".
type ModuleID string

// Module is the minimum interface every registrable component implements.
// Additional lifecycle behavior is opted into via Configurable, Provisioner,
// Validator, Starter, Stopper, and Reloader.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a module for registration purposes. New must return
// a fresh, zero-value instance each call; RegisterModule stores the ModuleInfo,
// not the instance passed to it.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}
