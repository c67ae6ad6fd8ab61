// Package main provides a CLI tool for assigning space member roles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cory-johannsen/flowspace/internal/config"
	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	spaceID := flag.String("space", "", "target space id (required)")
	userID := flag.String("user", "", "target user id (required)")
	role := flag.String("role", "", "role to assign: OWNER, STAFF, or PARTICIPANT (required)")
	flag.Parse()

	if *spaceID == "" || *userID == "" || *role == "" {
		flag.Usage()
		os.Exit(1)
	}

	r := space.Role(strings.ToUpper(*role))
	if !postgres.ValidRole(r) {
		log.Fatalf("invalid role %q: must be one of OWNER, STAFF, PARTICIPANT", *role)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewMemberRepository(pool.DB())

	prev := space.RoleParticipant
	if member, err := repo.GetMember(ctx, *spaceID, *userID); err == nil {
		prev = member.Role
	}

	if err := repo.SetRole(ctx, *spaceID, *userID, r); err != nil {
		log.Fatalf("setting role: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "set role for %s in %s: %s -> %s [%s]\n",
		*userID, *spaceID, prev, r, elapsed)
}
