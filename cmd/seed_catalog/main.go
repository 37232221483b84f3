// Command seed_catalog creates a demo database with public domain books, a few
// accounts and some reservations in every lifecycle stage.
// Usage: go run ./cmd/seed_catalog [-db path/to/demo.db]
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	"github.com/mrlokans/library/internal/entities"
)

const (
	defaultDemoDatabasePath = "./demo/library.db"
	demoPassword            = "library-demo-password"
)

type demoBook struct {
	Name   string
	Author string
}

var publicDomainBooks = []demoBook{
	{"Pride and Prejudice", "Jane Austen"},
	{"Emma", "Jane Austen"},
	{"Moby-Dick", "Herman Melville"},
	{"Frankenstein", "Mary Shelley"},
	{"The Adventures of Sherlock Holmes", "Arthur Conan Doyle"},
	{"Meditations", "Marcus Aurelius"},
	{"The Republic", "Plato"},
	{"Walden", "Henry David Thoreau"},
	{"Middlemarch", "George Eliot"},
	{"War and Peace", "Leo Tolstoy"},
	{"Crime and Punishment", "Fyodor Dostoevsky"},
	{"The Odyssey", "Homer"},
	{"On the Origin of Species", "Charles Darwin"},
	{"Great Expectations", "Charles Dickens"},
}

func main() {
	dbPath := flag.String("db", defaultDemoDatabasePath, "path to the demo database file")
	flag.Parse()

	log.Printf("Generating demo database at %s...", *dbPath)

	// Delete existing demo database to start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing demo database: %v", err)
	}

	db, err := database.NewSQLiteDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	authService := auth.NewService(db.DB, config.Auth{BcryptCost: 10})
	service := circulation.NewService(db.DB, circulation.NewClock(nil), circulation.DefaultLoanDays)

	if _, err := authService.CreateAdmin("librarian", "librarian@example.com", demoPassword); err != nil {
		log.Fatalf("Failed to create administrator: %v", err)
	}
	members := make([]*entities.User, 0, 3)
	for _, name := range []string{"alice", "bob", "carol"} {
		user, err := authService.CreateUser(name, name+"@example.com", demoPassword, entities.UserRoleMember)
		if err != nil {
			log.Fatalf("Failed to create member %s: %v", name, err)
		}
		members = append(members, user)
	}

	books := make([]*entities.Book, 0, len(publicDomainBooks))
	for _, b := range publicDomainBooks {
		book, err := service.AddBook(ctx, circulation.SystemActor, b.Name, b.Author)
		if err != nil {
			log.Printf("Failed to add %s: %v", b.Name, err)
			continue
		}
		books = append(books, book)
	}

	today := service.Today()
	date := func(days int) string {
		return today.AddDate(0, 0, days).Format(circulation.DateLayout)
	}

	// alice has one book out and one waiting, bob has a future reservation
	if len(books) >= 3 {
		alice := circulation.ActorFor(members[0])
		if res, err := service.Reserve(ctx, alice, books[0].ID, date(0)); err == nil {
			if _, err := service.Pickup(ctx, alice, books[0].ID, res.ID); err != nil {
				log.Printf("Failed to pick up %s: %v", books[0].Name, err)
			}
		}
		if _, err := service.Reserve(ctx, alice, books[1].ID, date(3)); err != nil {
			log.Printf("Failed to reserve %s: %v", books[1].Name, err)
		}
		if _, err := service.Reserve(ctx, circulation.ActorFor(members[1]), books[2].ID, date(7)); err != nil {
			log.Printf("Failed to reserve %s: %v", books[2].Name, err)
		}
	}

	log.Printf("Demo database generated: %d books, %d members (password %q)", len(books), len(members), demoPassword)
}
