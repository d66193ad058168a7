// Package pagination provides bounded-parallel fetching of paginated
// tracker resources.
//
// FetchAll schedules one fetch per page offset (0, pageSize, 2*pageSize, …)
// across a fixed-width worker pool and joins the pages into a pre-sized,
// offset-indexed buffer, so the concatenated result is always in ascending
// offset order no matter which page completes first.
//
// The commit contract is all-or-nothing: any single page failure, including
// a per-page timeout, fails the whole fetch and no partial result is
// returned. Pages that are already in flight when another page fails still
// run to completion; there is no mid-flight cancellation.
//
// The reported total is a point-in-time estimate. The remote may gain or
// lose records while pages are being fetched, so a merged count that differs
// from the total is accepted rather than treated as an error.
package pagination
