// Package oxia implements metadata.MetadataStore using Oxia.
//
// Usage:
//
//	store, err := oxia.New(ctx, oxia.Config{
//	    ServiceAddress: "localhost:6648",
//	    Namespace:      "gridlake",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Versions are shifted by one relative to Oxia, so that version 0 can mean
// "never written" in compare-and-set calls.
//
// Oxia orders keys hierarchically by '/'. Callers that need to list a whole
// subtree keep it at a single level, escaping '/' inside key segments.
package oxia
