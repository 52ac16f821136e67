package eventhub

import (
	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Sentinel errors for hub and module operations. Each has its own code below
// general.invalid_argument, module or eventhub, so errors.Is matches either the
// exact sentinel or, through hberrors.HasCode, the whole category.
var (
	// ErrNilModule indicates a nil Module or ExternalModule argument.
	ErrNilModule = hberrors.New(hberrors.CodeInvalidArgument+".nil_module", "module is nil")

	// ErrNilEvent indicates a nil event argument.
	ErrNilEvent = hberrors.New(hberrors.CodeInvalidArgument+".nil_event", "event is nil")

	// ErrNilCallback indicates a nil listener, processor or function argument.
	ErrNilCallback = hberrors.New(hberrors.CodeInvalidArgument+".nil_callback", "callback is nil")

	// ErrEmptyModuleName indicates a module whose Name() is empty.
	ErrEmptyModuleName = hberrors.New(hberrors.CodeInvalidArgument+".module_name", "module name is empty")

	// ErrReservedStateName indicates a module claiming the hub's own state name.
	ErrReservedStateName = hberrors.New(hberrors.CodeInvalidArgument+".reserved_state_name", "shared state name is reserved")

	// ErrEventDispatched indicates an event that was already dispatched, or a sentinel.
	ErrEventDispatched = hberrors.New(hberrors.CodeInvalidArgument+".event_dispatched", "event was already dispatched")
)

var (
	// ErrModuleNotRegistered indicates the module is unknown to the hub or is
	// being torn down.
	ErrModuleNotRegistered = hberrors.New(hberrors.CodeModuleNotFound, "module is not registered")

	// ErrModuleAlreadyRegistered indicates a second module with the same name.
	ErrModuleAlreadyRegistered = hberrors.New(hberrors.CodeModuleDuplicate, "module is already registered")

	// ErrNoSharedStateName indicates a shared state write by a module that
	// publishes no state.
	ErrNoSharedStateName = hberrors.New(hberrors.CodeModuleInvalidState+".no_state_name", "module has no shared state name")
)

var (
	// ErrHubDisposed is returned by every operation once disposal has begun.
	ErrHubDisposed = hberrors.New(hberrors.CodeHubDisposed, "event hub is disposed")

	// ErrAlreadyBooted is returned by a second FinishModulesRegistration.
	ErrAlreadyBooted = hberrors.New(hberrors.CodeHubBooted, "module registration already finished")
)
