// Package docqa embeds the docqa question-answering engine in a Go program.
//
// A Client owns a persistent local vector index. Documents are split into
// overlapping chunks, embedded and stored; questions are answered by an LLM
// from the closest chunks.
//
//	client, _ := docqa.New(ctx,
//	    docqa.WithIndexDir("data/vector_store"),
//	    docqa.WithOpenAI("http://localhost:11434/v1", "", "nomic-embed-text", "llama3.2"),
//	)
//	defer client.Close()
//
//	_, _ = client.AddFile(ctx, "handbook.docx")
//	ans, _ := client.Ask(ctx, "How many vacation days do I get?", 0)
//	fmt.Println(ans.Answer)
//
// Custom providers plug in through WithEmbedder and WithGenerator. An optional
// Valkey or Redis store caches embeddings between runs (WithValkey, WithRedis).
package docqa
