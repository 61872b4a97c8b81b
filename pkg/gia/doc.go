// Package gia provides types, interfaces, and helpers for managing
// disconnected applications in a PingOne/ForgeRock Identity Governance
// (IGA) tenant.
//
// # Overview
//
// The gia package defines the domain types (Application, ObjectType,
// UploadJob, Plan) and the interfaces of the resource clients, the
// reconciler and the upload job tracker. A concrete implementation is
// provided by the giaclient package, which wires configuration, transport,
// OAuth2 authentication and retries. Most consumers import giaclient to
// construct a client and then use the interfaces declared here.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/gia-client/pkg/gia"
//	  "github.com/fivetwenty-io/gia-client/pkg/giaclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := giaclient.New(&gia.Config{
//	    BaseURL:      "https://openam-example.forgeblocks.com",
//	    TokenURL:     "https://openam-example.forgeblocks.com/am/oauth2/access_token",
//	    ClientID:     "svc-gia",
//	    ClientSecret: "secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  result, err := cli.Reconciler().Reconcile(ctx, desired, true)
//	  if err != nil { log.Fatal(err) }
//	  _ = result
//	}
//
// # Reconciliation
//
// A DesiredState describes an application and its object types. The
// Reconciler resolves the remote application (by id, or by exact name when
// upserting), diffs object types by id and applies the smallest ordered set
// of operations. Object types that exist remotely but are absent from the
// desired state are never deleted; deletion is always an explicit call.
// Re-running a reconciliation after a failure recomputes a smaller plan.
//
// # Bulk uploads
//
// JobTracker.Submit streams a dataset to the ingestion endpoint and returns
// an UploadJob handle in the queued state. Poll advances the handle by one
// status request; WaitUntilTerminal polls until the job completes, fails or
// the timeout elapses. Terminal snapshots are immutable and are served from
// the job cache on later polls.
//
// # Errors
//
// Failures are reported with a small taxonomy: TransportError, AuthError,
// ValidationError, ConflictError, ProtocolError, RemoteError and
// CancelledError. PartialProgressError wraps the cause of a failed plan and
// lists which operations were applied. Use errors.As to branch on them, or
// the IsNotFound and IsConflict helpers.
package gia
