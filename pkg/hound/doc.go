// ABOUTME: Audio routing and mixing core
// ABOUTME: Registry of sources, sinks, devices and contexts wired by named connections
// Package hound routes audio between named producers and consumers.
//
// A Registry holds Sources and Sinks. Connect links one Source to one Sink
// through a Connection whose queue buffers reference counted audio buffers.
// A Sink mixes all of its connections into one destination buffer with
// format conversion and clipping.
//
// Endpoint owners receive callbacks through small interfaces: SourceHandler,
// Puller, SinkHandler, FormatChecker and DataNotifier. Callbacks always run
// after the registry lock has been released, so they may call back into the
// registry. A connection callback reports the endpoint's state when it runs
// and alternates between connected and disconnected; a connect that is undone
// before its notification runs produces no callback at all. The callback may
// run on the goroutine of whichever registry call changed the state last.
//
// Clients use a Context: a playback context owns a Source fed by its
// Streams, a capture context owns a Sink that fills its Streams. Stream
// writes never block and fail with ErrBusy when the stream is full.
//
// Example:
//
//	r := hound.NewRegistry(hound.WithLogger(log))
//	ctx := hound.NewPlaybackContext("player", audio.DefaultFormat, 64*1024)
//	if err := r.AddContext(ctx); err != nil {
//	    return err
//	}
//	if err := ctx.ConnectTarget("default"); err != nil {
//	    return err
//	}
//	_, err := ctx.WriteMain(pcm)
package hound
