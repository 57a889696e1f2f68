// Package engine runs many pipeline sessions side by side.
//
// An Engine holds named pipelines and executes tasks on them with a
// bounded number of concurrent sessions (a weighted semaphore). Running
// sessions can be cancelled by id; a batch of tasks fans out through an
// errgroup. Lifecycle callbacks run before and after every session; the
// built-in TranscriptCallback stores finished sessions.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.MaxConcurrentTasks = 4
//	    o.Transcripts = transcript.NewInMemoryStore()
//	})
//	p, _ := pipeline.New(pipeline.Router(), deps)
//	eng.Register(p)
//	res, err := eng.Run(ctx, "router", "How do I reset my VPN token?")
package engine
