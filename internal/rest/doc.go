// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest implements syncd, the zero-knowledge sync server.
//
// syncd stores the ciphertext records that docvault clients upload. It never
// holds a key: payloads arrive already encrypted and are returned as stored.
// Records are partitioned per user and written idempotently, so replaying an
// upload leaves the same state.
//
// # Routes
//
//	PUT  /v1/users/{userID}/records/{category}/{id}   upsert a record
//	GET  /v1/users/{userID}/records/{category}/{id}   fetch a record
//	GET  /v1/users/{userID}/records/{category}        list record ids
//	GET  /health                                      readiness
//	GET  /metrics                                     Prometheus metrics
//
// # Authentication
//
// When a JWT verifier is configured every /v1 request needs an
// "Authorization: Bearer <token>" header whose sub claim equals the
// {userID} path segment.
//
// # Server Setup
//
//	store := cloud.NewStore(backend, nil)
//	server, err := rest.NewServer(&rest.Config{
//	    Port:  8480,
//	    Store: store,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go server.Start()
//	defer server.Stop(context.Background())
package rest
