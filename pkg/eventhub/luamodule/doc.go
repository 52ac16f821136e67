// Package luamodule runs Lua scripts as external hub modules.
//
// A script is compiled by New and executed when the hub attaches the module.
// Its top level should only define functions; the hub API is available from
// on_register on. The script may define these globals:
//
//	on_register()        -- called once after the script body ran
//	on_unregister()      -- called once before the interpreter is closed
//	on_error(message)    -- called when one of the script's listeners fails
//
// and talks to the hub through the global table hub:
//
//	hub.listen(type, source, fn)          -- fn(event) for matching events
//	hub.listen_all(fn)                    -- fn(event) for every event
//	hub.dispatch(name, type, source[, data])
//	hub.set_state(data[, event])          -- nil data writes a pending state
//	hub.clear_state()
//	hub.get_state(name[, event])          -- table, or nil when pending/absent
//	hub.log(level, message)               -- "debug", "info", "warn", "error"
//	hub.unregister()
//
// Events reach Lua as tables with the fields name, type, source, number, id,
// pair_id, response_pair_id, timestamp (unix milliseconds) and data. Passing
// such a table back to set_state or get_state while its listener runs selects
// that event's version.
//
// Only the base, table, string and math libraries are opened. dofile,
// loadfile, load and loadstring are removed. Each call into the script runs
// under a timeout (WithCallTimeout).
//
// Basic usage:
//
//	mod, err := luamodule.New("counter", "1.0.0", script)
//	if err != nil {
//	    return err
//	}
//	if err := hub.RegisterExternalModule(mod); err != nil {
//	    return err
//	}
package luamodule
