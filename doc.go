// Package dossier answers research questions about companies from a local
// corpus of news articles, earnings-call transcripts and other documents.
//
// An Engine owns every pipeline component: the embedding provider, the
// persisted vector index, the retriever, the answer composer and the
// ingestion gate. Queries run on a bounded worker pool.
//
//	cfg, err := config.Load("dossier.yml")
//	if err != nil {
//	    return err
//	}
//	engine, err := dossier.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	result, err := engine.Query(ctx, "How did ACME's cloud revenue develop?", dossier.QueryOptions{
//	    Lookback: 30 * 24 * time.Hour,
//	})
package dossier
