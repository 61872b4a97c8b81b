// Package giaclient is the entry point for building a client of the
// PingOne Advanced Identity Cloud governance API that implements gia.Client.
//
// It normalizes the tenant URL, fills in the default token endpoint and
// wires HTTP transport, authentication, the job snapshot cache and the
// resource clients defined in the gia package.
//
// Quick start
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
//
//	  cli, err := giaclient.NewWithClientCredentials(ctx,
//	    "openam-example.forgeblocks.com", "svc-client", "secret")
//	  if err != nil { log.Fatal(err) }
//
//	  result, err := cli.Reconciler().Reconcile(ctx, &gia.DesiredState{
//	    Name: "HR Feed",
//	    ObjectTypes: map[string]gia.ObjectType{
//	      "accounts": {Type: gia.ObjectTypeAccount},
//	    },
//	  }, true)
//	  if err != nil { log.Fatal(err) }
//
//	  job, err := cli.Jobs().Submit(ctx, result.ApplicationID, "accounts", dataset)
//	  if err != nil { log.Fatal(err) }
//
//	  job, err = cli.Jobs().WaitUntilTerminal(ctx, job, 0, 0)
//	  if err != nil { log.Fatal(err) }
//	}
//
// # Token endpoint
//
// When client credentials are given without Config.TokenURL, the token
// endpoint of the alpha realm on the tenant host is used.
package giaclient
