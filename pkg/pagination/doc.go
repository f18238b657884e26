// Package pagination assembles a complete record list from a cursor-paginated
// backing source.
//
// The backing source returns at most one page per call together with an opaque
// continuation cursor while more pages remain. Each cursor depends on the
// previous response, so pages are fetched strictly one after another:
//
//	agg := pagination.NewAggregator(pagination.DefaultConfig())
//	records, err := agg.FetchAll(ctx, "employees", fetcher)
//
// The aggregator:
//   - starts without a cursor and follows cursors until one is absent
//   - keeps records in backing-source order, within and across pages
//   - aborts on the first failing page and returns that failure only;
//     records from earlier pages are discarded
//   - aborts when the page cap is reached or a cursor repeats
package pagination
