package main

import (
	"log"

	"github.com/gocql/gocql"
)

// Schema bootstrap for local development. Production schema changes go
// through migrations.
func main() {
	cluster := gocql.NewCluster("localhost")
	cluster.Keyspace = "system"
	cluster.Consistency = gocql.Quorum

	sys, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	err = sys.Query(`CREATE KEYSPACE IF NOT EXISTS chat
		WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sys.Close()
	if err != nil {
		log.Fatal(err)
	}

	cluster.Keyspace = "chat"
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS dm_messages (
		conversation_key text,
		id bigint,
		sender_id bigint,
		recipient_id bigint,
		body text,
		image_url text,
		created_at timestamp,
		PRIMARY KEY (conversation_key, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS users (
		external_id text,
		user_id bigint,
		display_name text,
		handle text,
		PRIMARY KEY (external_id)
	)`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Tables dm_messages and users created")
}
