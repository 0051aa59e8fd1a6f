// Package surveysearch embeds the survey search engine in a Go program
// without the HTTP API.
//
// The engine fuzzy-matches free text against cached attribute records of
// the survey, address point and taxlot layers, then resolves the matches
// into spatial queries whose features are returned as GeoJSON layers.
//
//	client, _ := surveysearch.New(ctx,
//	    surveysearch.WithSource(surveysearch.Survey, "https://gis.example.org/arcgis/rest/services/Surveys/MapServer/0"),
//	    surveysearch.WithSource(surveysearch.Address, "https://gis.example.org/arcgis/rest/services/Address/MapServer/0"),
//	    surveysearch.WithSource(surveysearch.Taxlot, "https://gis.example.org/arcgis/rest/services/Taxlots/MapServer/0"),
//	)
//	defer client.Close()
//	_ = client.Prefetch(ctx)
//	res, _ := client.Search(ctx, surveysearch.SearchRequest{Query: "river rim", Mode: surveysearch.ModeAddresses})
//	fmt.Println(res.Outcome, res.Count)
//
// Calls that share a SessionID behave like one map view: a newer search
// supersedes an older one still in flight, and only the newest draws.
package surveysearch
