// Package client is the Go SDK for the provenance ledger HTTP API.
//
// Reads are public; mutations and admin endpoints need a bearer token
// issued for a registered account:
//
//	c, err := client.New("https://ledger.example.com",
//	    client.WithBearerToken(os.Getenv("PROVENANCE_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := c.CreateProduct(ctx, client.CreateProductRequest{
//	    Name:     "Amoxicillin 500mg",
//	    Category: "pharmaceutical",
//	    Origin:   "Basel",
//	})
//
//	b, err := c.AppendCheckpoint(ctx, p.ID.String(), client.CheckpointRequest{
//	    Stage:    "manufacturing",
//	    Location: "Basel plant 2",
//	    Handler:  "line 4",
//	})
//
// Failed calls return an *APIError carrying the HTTP status and the error
// kind reported by the server:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Kind == "InvalidTransition" {
//	    // the product is not at a stage that allows this checkpoint
//	}
package client
