// seed_demo.go seeds a demo company (reps, a manager and a few leads) so the
// reassignment endpoints have something to rank.
//
// Usage:
//
//	go run scripts/seed_demo.go -driver sqlite -db ./reassign.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

type demoRep struct {
	name         string
	closeRate    float64
	responseSecs float64
	workload     int
	specialties  []string
}

var reps = []demoRep{
	{"Ava Patel", 80, 300, 10, []string{"tech", "saas"}},
	{"Ben Okafor", 40, 900, 30, nil},
	{"Cara Lindqvist", 65, 120, 55, []string{"health"}},
	{"Dev Moreno", 55, 60, 4, []string{"retail"}},
}

var leads = []struct {
	company  string
	repIndex int
	staleFor time.Duration
}{
	{"TechCorp", 1, 96 * time.Hour},
	{"HealthFirst Clinics", 0, 0},
	{"Retail Hub", -1, 0},
	{"Acme SaaS", 2, 120 * time.Hour},
}

func main() {
	driver := flag.String("driver", "sqlite", "database driver: sqlite or postgres")
	dsn := flag.String("db", "reassign.db", "sqlite path or postgres url")
	companyFlag := flag.String("company", "", "company id (random if empty)")
	flag.Parse()

	ctx := context.Background()
	db, err := open(ctx, *driver, *dsn)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	company := uuid.New()
	if *companyFlag != "" {
		if company, err = uuid.Parse(*companyFlag); err != nil {
			log.Fatalf("invalid company id: %v", err)
		}
	}

	repIDs := make([]uuid.UUID, len(reps))
	for i, r := range reps {
		p := &store.Profile{CompanyID: company, DisplayName: r.name, Role: store.RoleSalesRep}
		if err := db.UpsertProfile(ctx, p); err != nil {
			log.Fatalf("profile %s: %v", r.name, err)
		}
		err := db.UpsertRepMetrics(ctx, &store.RepMetrics{
			RepID:               p.ID,
			CloseRate:           r.closeRate,
			ResponseTimeSeconds: r.responseSecs,
			Workload:            r.workload,
			Specialties:         r.specialties,
		})
		if err != nil {
			log.Fatalf("metrics %s: %v", r.name, err)
		}
		repIDs[i] = p.ID
		fmt.Printf("rep      %s  %s\n", p.ID, r.name)
	}

	mgr := &store.Profile{CompanyID: company, DisplayName: "Mia Chen", Role: store.RoleManager}
	if err := db.UpsertProfile(ctx, mgr); err != nil {
		log.Fatalf("manager: %v", err)
	}
	fmt.Printf("manager  %s  %s\n", mgr.ID, mgr.DisplayName)

	for _, l := range leads {
		lead := &store.Lead{CompanyID: company, CompanyName: l.company}
		if l.repIndex >= 0 {
			lead.AssignedTo = &repIDs[l.repIndex]
		}
		if l.staleFor > 0 {
			t := time.Now().UTC().Add(-l.staleFor)
			lead.LastContactedAt = &t
		}
		if err := db.CreateLead(ctx, lead); err != nil {
			log.Fatalf("lead %s: %v", l.company, err)
		}
		fmt.Printf("lead     %s  %s\n", lead.ID, l.company)
	}

	fmt.Printf("company  %s\n", company)
}

func open(ctx context.Context, driver, dsn string) (store.Store, error) {
	if driver == "postgres" {
		db, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, db.Migrate(ctx)
	}
	db, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, err
	}
	return db, db.Migrate(ctx)
}
