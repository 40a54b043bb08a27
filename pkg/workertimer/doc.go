// Package workertimer offers SetInterval and SetTimeout whose ticks are kept by
// a background worker instead of the caller.
//
// Each call spawns one worker running the timer loop. The worker arms a native
// timer and sends a tick notification every time it fires; the dispatcher
// relays each tick to the callback. When the host cannot run workers the
// dispatcher arms the native timer directly. Either way the caller gets a
// Handle whose Clear cancels future invocations:
//
//	h := workertimer.SetInterval(func() { log.Println("tick") }, time.Second)
//	defer h.Clear()
//
// Nothing is ever returned as an error: failures are logged and degrade to the
// direct path (or, with WithConstructionFallback(false), to a handle that only
// warns when cleared).
package workertimer
