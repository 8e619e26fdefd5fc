// seed inserts a handful of sample tasks into the local dev database,
// covering cron, rrule, once, and event schedules plus a dedupe/
// concurrency-key example, generalizing the teacher's seed script from
// plain HTTP jobs to pipeline-backed tasks.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/scheduler"
	"github.com/edgeworks-labs/orbiter/internal/store/postgres"
)

const seedOwnerID = "owner_seed_dev_local"

func step(id, uses string, with *domain.OrderedObject) domain.Step {
	return domain.Step{ID: id, Uses: uses, With: with}
}

func withArgs(kv ...string) *domain.OrderedObject {
	obj := domain.NewOrderedObject()
	for i := 0; i+1 < len(kv); i += 2 {
		obj.Set(kv[i], domain.StringValue(kv[i+1]))
	}
	return obj
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	taskRepo := postgres.NewTaskRepository(pool)

	dedupeKey := "seed-dedupe-digest"
	concurrencyKey := "seed-concurrency-digest"

	tasks := []*domain.Task{
		{
			OwnerID: seedOwnerID,
			Title:   "every-minute-echo",
			Schedule: domain.Schedule{
				Kind:       domain.ScheduleCron,
				Expression: "* * * * *",
				Timezone:   "UTC",
			},
			Payload: domain.Payload{
				Pipeline: []domain.Step{
					step("echo", "https://httpbin.org/post", withArgs("message", "hello from orbiter")),
				},
			},
			Policy: domain.Policy{Priority: 5, MaxRetries: 3, BackoffStrategy: domain.BackoffExponentialJitter},
			Status: domain.TaskActive,
		},
		{
			OwnerID: seedOwnerID,
			Title:   "hourly-on-minute-fifteen",
			Schedule: domain.Schedule{
				Kind:       domain.ScheduleRRule,
				Expression: "FREQ=HOURLY;BYMINUTE=15",
				Timezone:   "America/New_York",
			},
			Payload: domain.Payload{
				Pipeline: []domain.Step{
					step("fetch", "https://httpbin.org/get", nil),
				},
			},
			Policy: domain.Policy{Priority: 3, MaxRetries: 2, BackoffStrategy: domain.BackoffLinear},
			Status: domain.TaskActive,
		},
		{
			OwnerID: seedOwnerID,
			Title:   "one-shot-reminder",
			Schedule: domain.Schedule{
				Kind:       domain.ScheduleOnce,
				Expression: time.Now().Add(5 * time.Minute).Format(time.RFC3339),
				Timezone:   "UTC",
			},
			Payload: domain.Payload{
				Pipeline: []domain.Step{
					step("notify", "https://httpbin.org/post", withArgs("text", "one-shot fired")),
				},
			},
			Policy: domain.Policy{Priority: 7, MaxRetries: 1, BackoffStrategy: domain.BackoffFixed},
			Status: domain.TaskActive,
		},
		{
			OwnerID: seedOwnerID,
			Title:   "order-placed-webhook",
			Schedule: domain.Schedule{
				Kind:       domain.ScheduleEvent,
				Expression: "orders.placed",
			},
			Payload: domain.Payload{
				Pipeline: []domain.Step{
					step("forward", "https://httpbin.org/post", withArgs("relay", "order")),
				},
			},
			Policy: domain.Policy{Priority: 6, MaxRetries: 5, BackoffStrategy: domain.BackoffExponentialJitter},
			Status: domain.TaskActive,
		},
		{
			OwnerID: seedOwnerID,
			Title:   "nightly-digest-deduped",
			Schedule: domain.Schedule{
				Kind:       domain.ScheduleCron,
				Expression: "0 2 * * *",
				Timezone:   "UTC",
			},
			Payload: domain.Payload{
				Pipeline: []domain.Step{
					step("digest", "https://httpbin.org/post", withArgs("report", "nightly")),
				},
			},
			Policy: domain.Policy{
				Priority:            4,
				MaxRetries:          3,
				BackoffStrategy:     domain.BackoffExponentialJitter,
				DedupeKey:           &dedupeKey,
				DedupeWindowSeconds: 3600,
				ConcurrencyKey:      &concurrencyKey,
			},
			Status: domain.TaskActive,
		},
	}

	var created int
	for _, t := range tasks {
		if t.Schedule.Kind != domain.ScheduleEvent {
			next, err := scheduler.ComputeNext(t.Schedule, time.Now())
			if err != nil {
				log.Fatalf("compute next run for %s: %v", t.Title, err)
			}
			t.NextRun = &next
		}
		if err := t.Validate(); err != nil {
			log.Fatalf("validate %s: %v", t.Title, err)
		}

		if _, err := taskRepo.Create(ctx, t); err != nil {
			if err == domain.ErrDuplicateTask {
				fmt.Printf("  skip %s: already seeded\n", t.Title)
				continue
			}
			log.Fatalf("create task %s: %v", t.Title, err)
		}
		created++
		fmt.Printf("  created %s (id=%s)\n", t.Title, t.ID)
	}

	fmt.Println()
	fmt.Printf("Seed complete: %d task(s) created for owner %q\n", created, seedOwnerID)
	fmt.Println()
	fmt.Println("Publish a matching event to fire the event-triggered task:")
	fmt.Println(`  curl -X POST localhost:8080/events -H "Authorization: Bearer $JWT" \`)
	fmt.Println(`    -d '{"topic":"orders.placed","source":"seed","payload":{"order_id":"o-1"}}'`)
}
