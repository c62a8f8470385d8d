package sweep

import (
	"context"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"signage-fleet-backend/config"
	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/notification"
	"signage-fleet-backend/internal/store"
)

// Runner drives the two periodic sweeps: availability classification and
// order lifecycle advancement. Each sweep runs on its own ticker loop with
// an immediate first pass on startup.
//
// Two guards keep sweeps single-flight. The singleflight group collapses
// overlapping ticks inside the process (a slow database pass outliving the
// interval). The optional redis lease does the same across replicas; when
// redis is not configured the runner degrades to per-process guarding.
type Runner struct {
	cfg        *config.Config
	store      store.Store
	redis      *redis.Client
	group      singleflight.Group
	workerPool *notification.WorkerPool
}

func NewRunner(cfg *config.Config, st store.Store, redisClient *redis.Client) *Runner {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Runner{
		cfg:        cfg,
		store:      st,
		redis:      redisClient,
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, st.DB(), &webpushOptions),
	}
}

// WorkerPool exposes the notification pool for testing.
func (r *Runner) WorkerPool() *notification.WorkerPool {
	return r.workerPool
}

// Run starts both sweep loops and blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	if !r.cfg.Sweep.Enabled {
		log.Println("Sweeps are disabled. Not starting.")
		return
	}
	log.Println("Starting sweep runner...")

	r.workerPool.Start(ctx)

	go r.loop(ctx, "availability", r.cfg.Sweep.AvailabilityInterval, r.SweepAvailabilityOnce)
	r.loop(ctx, "orders", r.cfg.Sweep.OrdersInterval, r.SweepOrdersOnce)
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context)) {
	sweep(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s sweep shutting down.", name)
			return
		case <-timer.C:
			sweep(ctx)
			timer.Reset(interval)
		}
	}
}

// SweepAvailabilityOnce performs a single availability classification pass
// and dispatches notification jobs for the transitions operators care
// about: a terminal going long-offline, or coming back from it.
func (r *Runner) SweepAvailabilityOnce(ctx context.Context) {
	r.guarded(ctx, "availability", r.cfg.Sweep.AvailabilityInterval, func() {
		transitions, err := r.store.SweepAvailability(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("Availability sweep failed: %v", err)
			return
		}
		for _, t := range transitions {
			if t.To == model.StatusOfflineLong ||
				(t.To == model.StatusOnline && t.From == model.StatusOfflineLong) {
				r.workerPool.Dispatch(t)
			}
		}
		if len(transitions) > 0 {
			log.Printf("Availability sweep applied %d transitions", len(transitions))
		}
	})
}

// SweepOrdersOnce performs a single order lifecycle pass.
func (r *Runner) SweepOrdersOnce(ctx context.Context) {
	r.guarded(ctx, "orders", r.cfg.Sweep.OrdersInterval, func() {
		advanced, err := r.store.SweepOrders(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("Order sweep failed: %v", err)
			return
		}
		if advanced > 0 {
			log.Printf("Order sweep advanced %d orders", advanced)
		}
	})
}

func (r *Runner) guarded(ctx context.Context, name string, interval time.Duration, fn func()) {
	r.group.Do(name, func() (any, error) {
		release, ok := r.acquireLease(ctx, name, interval)
		if !ok {
			return nil, nil
		}
		defer release()
		fn()
		return nil, nil
	})
}

// acquireLease takes the cluster-wide sweep lease. A missed or failed
// acquisition skips this tick; another replica (or the next tick) covers
// it, since sweeps are idempotent over current state.
func (r *Runner) acquireLease(ctx context.Context, name string, ttl time.Duration) (func(), bool) {
	if r.redis == nil {
		return func() {}, true
	}

	key := "sweep:lease:" + name
	ok, err := r.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		log.Printf("Failed to acquire %s sweep lease: %v", name, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := r.redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			log.Printf("Failed to release %s sweep lease: %v", name, err)
		}
	}, true
}
