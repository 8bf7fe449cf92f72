package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"leaveflow.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		user = flag.String("user", "", "Subject user id")
		role = flag.String("role", "employee", "Role: employee or manager")
		ttl  = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *user == "" {
		log.Fatal("missing -user")
	}
	parsed, ok := auth.ParseRole(*role)
	if !ok {
		log.Fatalf("unknown role %q", *role)
	}

	token, err := auth.GenerateToken(*user, parsed, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
