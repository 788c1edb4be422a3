// Package engine wires the dispatch subsystems together and provides
// the application-level API for registering handlers, submitting jobs
// and administering cron definitions.
//
// # Building an Engine
//
//	d, err := dispatch.New(
//	    dispatch.WithStore(pgStore),
//	    dispatch.WithConcurrency(8),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithBroker(redisBroker),
//	    engine.WithBackoff(backoff.Exponential(time.Second, time.Minute)),
//	    engine.WithQueueConfig(queue.Config{
//	        JobType:   "import:products",
//	        RateLimit: 2,
//	    }),
//	)
//
// # Registering Work
//
//	engine.Register(eng, job.NewDefinition("email:notify", sendEmail))
//	eng.RegisterFunc("cache:cleanup", cleanupCache)
//	eng.RegisterMaintenance(ctx, "0 3 * * *", 30*24*time.Hour)
//
// Register handlers before Start: the poller and broker pool consume the
// job types registered at that point.
//
// # Submitting Jobs
//
//	j, err := engine.Enqueue(ctx, eng, "email:notify", EmailInput{To: "a@example.com"},
//	    job.WithPriority(job.PriorityHigh),
//	)
//	report, err := eng.GetStatus(ctx, j.ID)
//	result, err := eng.Cancel(ctx, j.ID)
//
// # Crons
//
//	e, err := eng.CreateCron(ctx, engine.CronSpec{
//	    Name:       "nightly-credits",
//	    Expression: "0 2 * * *",
//	    JobType:    "billing:credits",
//	})
//	eng.PauseCron(ctx, e.ID)
package engine
