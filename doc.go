// Package vecrag is a small retrieval-augmented generation helper.
//
// It splits text into overlapping chunks, embeds them with an
// OpenAI-compatible model and stores them in a vector engine (Redis Stack,
// Valkey Search or Qdrant). Queries return the texts of the nearest chunks
// whose cosine distance to the query is below a threshold.
//
// Quick start:
//
//	client, err := vecrag.New(ctx,
//		vecrag.WithConnection(vecrag.DefaultConnection()),
//		vecrag.WithOpenAI(os.Getenv("OPENAI_API_KEY"), ""),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	err = client.Index(ctx, vecrag.Text("long text ..."))
//	texts, err := client.Query(ctx, "what is ...?", vecrag.DefaultThreshold)
//
// Every Index call rebuilds the collection from scratch. Readers keep seeing
// the previous contents until the new ones are in place.
package vecrag
